package main

import "github.com/automograph/mograph/internal/cli"

func main() {
	cli.Execute()
}
