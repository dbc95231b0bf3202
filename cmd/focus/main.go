// focus evaluates, trims and validates spreadsheet models from the command
// line.
package main

import "os"

func main() {
	os.Exit(Execute())
}
