// Command docmap analyzes documents from the command line: it builds the
// topic map for a file and writes the JSON map and the anomaly report.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
