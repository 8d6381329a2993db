package main

import "pyrock/internal/cli"

func main() {
	cli.Execute()
}
