package main

import (
	"os"

	"github.com/cs50victor/mcpx/cmd/mcpx"
)

func main() {
	os.Exit(mcpx.Execute())
}
