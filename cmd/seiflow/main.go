package main

import (
	"os"

	"SeiFlow/internal/cli"
)

func main() {
	os.Exit(cli.NewRunner().Run(os.Args[1:]))
}
