package main

import (
	"fmt"
	"os"

	"bindharvest/cmd/bh/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
