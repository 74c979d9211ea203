package main

import "github.com/ayusman/livecam/cmd/livecam/commands"

func main() {
	commands.Execute()
}
