package cache

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/pkg/database"
)

type ClearCommand struct {
	*base.DataCommand

	flagAll bool
}

func (c *ClearCommand) Synopsis() string {
	return "Remove cached entries"
}

func (c *ClearCommand) Help() string {
	return `Usage: dm cache clear [options] <model>...
       dm cache clear -all

  Removes the cached entries of the given models, or of every model with
  -all. The next cached read loads them again.` + c.Flags().Help()
}

func (c *ClearCommand) Flags() *base.FlagSet {
	f := c.DataFlags("cache clear")
	f.BoolVar(&c.flagAll, "all", false, "Clear every cached model")
	return f
}

func (c *ClearCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagAll == (f.NArg() > 0) {
		c.UI.Error("expected model titles or -all")
		return 1
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	db, store, err := c.OpenCache(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening cache: %v", err))
		return 1
	}
	defer database.Close(db)

	ctx, cancel := c.Context()
	defer cancel()

	names := f.Args()
	if c.flagAll {
		status, err := store.Status(ctx)
		if err != nil {
			c.UI.Error(err.Error())
			return 1
		}
		for _, m := range status {
			names = append(names, m.Collection)
		}
	}

	var result *multierror.Error
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		c.Log.Debug("cleared cache", "model", name)
		c.UI.Info(fmt.Sprintf("Cleared %s", name))
	}
	if err := result.ErrorOrNil(); err != nil {
		c.UI.Error(fmt.Sprintf("error clearing cache: %v", err))
		return 1
	}
	return 0
}
