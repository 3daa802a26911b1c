// ABOUTME: Entry point for the contactcmd CLI

package main

import (
	"os"

	"github.com/jnun/contactcmd/cmd/contactcmd/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
