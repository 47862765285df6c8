package main

import "github.com/zapdesk/wabridge/internal/cli"

func main() {
	cli.Execute()
}
