package main

import "agentchat/core/cmd"

func main() {
	cmd.Execute()
}
