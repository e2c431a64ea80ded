// Command bagrecorder records and inspects pub/sub message traffic as bag files.
package main

import (
	"fmt"
	"os"

	"github.com/icc-tech/bagrecorder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
