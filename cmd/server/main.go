// Package main implements the lexis-api server binary. It serves the
// scheduling API, runs database migrations and mints development tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
