package main

import (
	"os"

	"github.com/harun/ranya-voice/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
