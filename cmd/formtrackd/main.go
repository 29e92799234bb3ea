package main

import (
	"os"

	"github.com/trainr/formtrack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
