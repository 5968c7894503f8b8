package main

import "cchat/internal/commands"

func main() {
	commands.Execute()
}
