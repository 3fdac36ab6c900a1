// Package main is the entry point for the priceload CLI.
package main

import (
	"os"

	"github.com/gyeh/priceload/cmd/priceload/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
