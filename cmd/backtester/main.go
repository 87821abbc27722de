package main

import (
	"os"

	"twse-backtester/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
