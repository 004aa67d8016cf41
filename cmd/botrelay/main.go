package main

import "github.com/vietddude/botrelay/internal/cli"

func main() {
	cli.Execute()
}
