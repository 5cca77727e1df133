package main

import (
	"os"

	"github.com/uagent/toolcore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
