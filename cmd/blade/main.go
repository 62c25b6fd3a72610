// Command blade compiles, renders and serves Blade views from the command
// line.
//
// Settings come from, highest priority first: flags, BLADE_* environment
// variables (a .env file in the working directory is loaded first), then the
// config file (.blade.yml, or --config, or BLADE_CONFIG_FILE).
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
