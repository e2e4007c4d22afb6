package entry

import (
	"fmt"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
)

type Command struct {
	*base.DataCommand

	flagLevels int
}

func (c *Command) Synopsis() string {
	return "Show one entry"
}

func (c *Command) Help() string {
	return `Usage: dm entry [options] <model> <id>

  Prints the full document of one entry.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := c.DataFlags("entry")
	f.IntVar(&c.flagLevels, "levels", 0, "Levels of linked entries to embed")
	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 2 {
		c.UI.Error("expected two arguments: the model title and the entry ID")
		return 1
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	client, err := c.NewClient(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error creating client: %v", err))
		return 1
	}

	ctx, cancel := c.Context()
	defer cancel()

	e, err := client.Model(f.Arg(0)).Entry(ctx, f.Arg(1), c.flagLevels)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error getting entry: %v", err))
		return 1
	}

	if err := c.Print(e.Resource()); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
