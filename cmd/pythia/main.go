package main

import (
	"os"

	"github.com/wonny/pythia/backend/cmd/pythia/commands"
)

// main is the entry point for the Pythia CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/pythia [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
