// Command catwalkctl is the operator CLI for a running coordinator.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: catwalkctl <workers|addons|call> [options]")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "workers":
		runWorkers(os.Args[2:])
	case "addons":
		runAddons(os.Args[2:])
	case "call":
		runCall(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Usage: catwalkctl <workers|addons|call> [options]")
		os.Exit(1)
	}
}
