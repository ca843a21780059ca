package main

import "github.com/set-night/mindcanvas/internal/cli"

func main() {
	cli.Execute()
}
