package main

import "shielded-feed/internal/cli"

func main() {
	cli.Execute()
}
