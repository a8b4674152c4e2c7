// Command notecore is a local-first note store with pluggable sync adapters.
package main

import (
	"os"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
