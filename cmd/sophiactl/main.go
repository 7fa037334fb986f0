package main

import (
	"fmt"
	"os"
)

// main simply calls Cli
func main() {
	config := NewCliConfig()
	rc, err := Cli(os.Args[1:], config)
	if err != nil {
		fmt.Fprintf(config.Stderr, "%s: %s\n", config.Name, err)
	}
	os.Exit(rc)
}
