package main

import (
	"os"

	"github.com/Brain-Board-Development/BrainBoard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
