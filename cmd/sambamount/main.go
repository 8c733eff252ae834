// Package main is the entry point for the sambamount SMB mount manager.
package main

import (
	"os"

	"github.com/edumarques81/sambamount/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
