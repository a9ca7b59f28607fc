package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON prints v as indented JSON to stdout, used by every
// subcommand when --json is set.
func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encode output: %v", err)
	}
}

// printOrJSON prints plain via printPlain unless --json was set, in
// which case v is emitted as JSON instead.
func printOrJSON(v interface{}, printPlain func()) {
	if jsonOutput {
		outputJSON(v)
		return
	}
	printPlain()
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "dogma: "+format+"\n", args...)
}
