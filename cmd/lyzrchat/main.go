// Command lyzrchat is a terminal front end for the Lyzr chat session. It keeps
// conversations in a local JSON file and talks to the same agent endpoint as
// the Lambda deployment.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(newApp(os.Stdout, os.Stdin)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
