package main

import (
	"os"

	"certagent/cmd/certagent/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
