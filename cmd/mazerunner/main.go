package main

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/invisible-tech/mazerunner-sdk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
