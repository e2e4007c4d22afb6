package cache

import (
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Inspect and clear the cache database"
}

func (c *Command) Help() string {
	return `Usage: dm cache <subcommand> [options] [args]

  This command groups subcommands for the local entry cache.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
