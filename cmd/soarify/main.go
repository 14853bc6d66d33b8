package main

import "soarify/cmd/cli"

func main() {
	cli.Execute()
}
