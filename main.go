// ./main.go
package main

import (
	"github.com/great-insider/insightshield/cmd"
)

// main is the entry point for the InsightShield CLI.
func main() {
	// Execute handles command-line parsing, configuration, and execution.
	cmd.Execute()
}
