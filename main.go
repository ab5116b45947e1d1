// The main package for the sitesearch executable.
package main

import (
	"github.com/JakeFAU/sitesearch-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
