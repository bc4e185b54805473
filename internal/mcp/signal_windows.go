//go:build windows

package mcp

import (
	"os"
	"os/signal"
)

// notifySignals registers Ctrl+C for graceful shutdown of the stdio server.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
