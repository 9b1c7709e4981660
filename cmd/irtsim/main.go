package main

import (
	"os"

	"github.com/goblincore/irtsim/internal/cli"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
