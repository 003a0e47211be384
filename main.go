package main

import (
	"os"

	"github.com/leftmike/anchor/cmd"
)

func main() {
	if cmd.Execute() != nil {
		os.Exit(1)
	}
}
