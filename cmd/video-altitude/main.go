package main

import (
	"os"

	"github.com/menta2k/video-altitude/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
