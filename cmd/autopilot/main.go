// Package main provides the autopilot CLI: a headless automation driver
// that finds a running assistant's debugging endpoint and activates its UI
// controls on a timed loop, with a safety blocklist guarding command
// execution.
package main

func main() {
	Execute()
}
