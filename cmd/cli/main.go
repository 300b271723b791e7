package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/elecmate/rams/cmd/cli/commands"
)

func main() {
	// A missing .env file is fine, the environment may already be set
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
