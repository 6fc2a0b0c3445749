package main

import "github.com/agentic-research/geocat/cmd"

func main() {
	cmd.Execute()
}
