package main

import (
	"os"

	"github.com/hyperterse/queryengine/core/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
