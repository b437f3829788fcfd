// Package main provides the ghsync service and CLI for mirroring GitHub data.
package main

import "github.com/mscno/ghsync/cmd/ghsync/commands"

func main() {
	commands.Execute(Version)
}
