// Nimbus is a conversational weather assistant backend.
//
// It exposes a JSON API that accepts chat messages, maintains per-session
// conversation state in PostgreSQL, and answers through an LLM that can
// call weather, web search, and utility tools.
package main

import (
	"fmt"
	"os"

	"github.com/nimbuslabs/nimbus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
