/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"strings"
)

// runConsole reads operator commands from stdin. "stop" shuts the process
// down; every connected client is sent a close frame on the way out.
func runConsole(cfg *Config, stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "stop":
			logf(cfg, "STOP: Shutting down")
			stop()

			return
		case "help":
			log.Println("commands: stop, help")
		case "":
		default:
			log.Printf("unknown command %q (try \"help\")", strings.TrimSpace(scanner.Text()))
		}
	}
}
