// The main package for the creatorcrawl executable.
package main

import (
	"github.com/JakeFAU/creatorcrawl/cmd"
)

func main() {
	cmd.Execute()
}
