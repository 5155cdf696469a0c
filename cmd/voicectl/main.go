// Package main is the entry point for voicectl.
// `voicectl server` runs the control API; `voicectl agent` is the worker
// process the server spawns for each channel.
package main

import (
	"fmt"
	"os"
)

const usage = `Usage: voicectl <command> [flags]

Commands:
  server   run the agent control API
  agent    run one realtime agent worker (started by the server)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(os.Args[2:])
	case "agent":
		err = runAgent(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicectl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}
