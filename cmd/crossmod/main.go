package main

import (
	"os"

	"crossmod/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
