// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"
)

// version is overwritten at build time via -ldflags.
var version = "dev"

func main() {
	c := cli.NewCLI("render-worker", version)
	c.Args = os.Args[1:]
	c.Commands = map[string]cli.CommandFactory{
		"run":     runCommandFactory,
		"version": versionCommandFactory,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode)
}
