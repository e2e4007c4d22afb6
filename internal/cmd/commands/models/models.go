package models

import (
	"fmt"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
)

type Command struct {
	*base.DataCommand
}

func (c *Command) Synopsis() string {
	return "List the models of a Data Manager"
}

func (c *Command) Help() string {
	return `Usage: dm models [options]

  Lists every model with its fields.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	return c.DataFlags("models")
}

func (c *Command) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
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

	models, err := client.ModelList(ctx)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error listing models: %v", err))
		return 1
	}

	if err := c.Print(models); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
