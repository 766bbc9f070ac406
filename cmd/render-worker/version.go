// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"

	"github.com/hashicorp/cli"
)

type versionCommand struct{}

func versionCommandFactory() (cli.Command, error) {
	return versionCommand{}, nil
}

func (versionCommand) Help() string     { return "Prints the render-worker version." }
func (versionCommand) Synopsis() string { return "Prints the render-worker version" }

func (versionCommand) Run(_ []string) int {
	fmt.Printf("render-worker %s\n", version)
	return 0
}
