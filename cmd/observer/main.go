package main

import "github.com/vietddude/chain-observer/internal/cli"

func main() {
	cli.Execute()
}
