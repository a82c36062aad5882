package main

import (
	"os"

	"github.com/optimode/mxprobe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
