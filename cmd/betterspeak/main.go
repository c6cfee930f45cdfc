// Command betterspeak records speech, detects disfluencies in it and reports
// the percentage of stuttered syllables.
//
// Usage:
//
//	betterspeak [--config config.yaml] <command> [flags]
//
// Commands:
//
//	serve   - run the HTTP and WebSocket API
//	record  - record from the microphone, detect and print a report
//	version - print the build version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "betterspeak:", err)
		os.Exit(1)
	}
}
