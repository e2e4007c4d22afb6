package version

import (
	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the dm version"
}

func (c *Command) Help() string {
	return `Usage: dm version

  Prints the version of this binary.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output("dm " + version.FullVersion())
	return 0
}
