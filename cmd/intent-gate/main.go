package main

import "github.com/Intent-Gate/Intentgate/cmd/intent-gate/cmd"

func main() {
	cmd.Execute()
}
