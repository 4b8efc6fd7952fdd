package main

import (
	"os"

	"github.com/safing/portbase/info"
	"github.com/safing/portbase/run"

	_ "github.com/safing/fortuna/rng"
)

func main() {
	// Set Info
	info.Set("Fortuna RNG Demo", "0.1.0", "GPLv3")

	// Run
	os.Exit(run.Run())
}
