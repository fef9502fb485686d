package main

import (
	"os"

	"github.com/treemana/dohtun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
