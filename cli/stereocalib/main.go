// Package main is the stereocalib command.
package main

import (
	"os"

	"go.viam.com/stereocalib/cli"
	"go.viam.com/stereocalib/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}
