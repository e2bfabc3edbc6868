// The main package for the judgment-crawler executable.
package main

import (
	"github.com/opencourtdata/judgment-crawler/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
