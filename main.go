package main

import (
	"fmt"
	"os"

	"ourmate-bot/internal/commands"
)

var version = "dev"

func main() {
	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
