package main

import (
	"os"

	"github.com/msto63/kflogs/cmd/kflogs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
