// The main package for the asyncjob executable.
package main

import (
	"github.com/JakeFAU/asyncjob/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
