package main

import "github.com/glimmerapp/glimmer/cmd/glimmer-call/cmd"

func main() {
	cmd.Execute()
}
