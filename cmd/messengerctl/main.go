package main

import (
	"os"

	"messenger/cmd/messengerctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
