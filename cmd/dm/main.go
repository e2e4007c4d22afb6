package main

import (
	"os"

	"github.com/hashicorp-forge/datamanager/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
