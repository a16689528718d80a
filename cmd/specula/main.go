// Package main is the entry point for the specula CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/inercia/specula/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
