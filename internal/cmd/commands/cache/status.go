package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/pkg/database"
)

type StatusCommand struct {
	*base.DataCommand
}

func (c *StatusCommand) Synopsis() string {
	return "Show cached models"
}

func (c *StatusCommand) Help() string {
	return `Usage: dm cache status [options]

  Lists every cached model with its entry count, load time and whether it
  is older than the configured max age.` + c.Flags().Help()
}

func (c *StatusCommand) Flags() *base.FlagSet {
	return c.DataFlags("cache status")
}

type collectionStatus struct {
	Model   string    `json:"model"`
	ETag    string    `json:"etag,omitempty"`
	Count   int       `json:"count"`
	Created time.Time `json:"created"`
	Stale   bool      `json:"stale"`
}

func (c *StatusCommand) Run(args []string) int {
	if err := c.Flags().Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
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

	all, err := store.Status(ctx)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	maxAge := cfg.CacheMaxAge()
	out := make([]collectionStatus, 0, len(all))
	for _, m := range all {
		out = append(out, collectionStatus{
			Model:   m.Collection,
			ETag:    m.ETag,
			Count:   m.Count,
			Created: m.Created,
			Stale:   time.Since(m.Created) > maxAge,
		})
	}

	if err := c.Print(out); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}
