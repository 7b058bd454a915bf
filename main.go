// The main package for the sb2gsd executable.
package main

import (
	"github.com/JakeFAU/sb2gs-service/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
