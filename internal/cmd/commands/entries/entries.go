package entries

import (
	"fmt"
	"strings"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/pkg/cache"
	"github.com/hashicorp-forge/datamanager/pkg/database"
	"github.com/hashicorp-forge/datamanager/pkg/datamanager"
	"github.com/hashicorp-forge/datamanager/pkg/query"
)

type Command struct {
	*base.DataCommand

	flagSize   int
	flagPage   int
	flagSort   string
	flagLevels int
	flagFilter filterFlag
	flagCached bool
	flagMode   string
}

func (c *Command) Synopsis() string {
	return "List the entries of a model"
}

func (c *Command) Help() string {
	return `Usage: dm entries [options] <model>

  Lists one page of entries of a model. With -cached the whole model is
  loaded into the cache database and the page is served from there.

  Filters are field=value for exact matches and field~=value for
  searches:

      dm entries -filter done=false -filter title~=milk to-do-list` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := c.DataFlags("entries")

	if c.flagFilter == nil {
		c.flagFilter = filterFlag{}
	}

	f.IntVar(&c.flagSize, "size", 0, "Page size")
	f.IntVar(&c.flagPage, "page", 0, "Page number, starting at 1")
	f.StringVar(
		&c.flagSort, "sort", "",
		"Comma separated sort fields, prefixed with - for descending",
	)
	f.IntVar(&c.flagLevels, "levels", 0, "Levels of linked entries to embed")
	f.Var(&c.flagFilter, "filter", "Filter as field=value or field~=value (repeatable)")
	f.BoolVar(&c.flagCached, "cached", false, "Serve from the cache database")
	f.StringVar(
		&c.flagMode, "mode", string(cache.ModeDefault),
		"Cache mode with -cached (default, stale, refresh)",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected one argument: the model title")
		return 1
	}
	title := f.Arg(0)

	mode := cache.Mode(c.flagMode)
	switch mode {
	case cache.ModeDefault, cache.ModeStale, cache.ModeRefresh:
	default:
		c.UI.Error(fmt.Sprintf("unknown cache mode %q", c.flagMode))
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

	model := client.Model(title)
	if c.flagCached {
		db, store, err := c.OpenCache(cfg)
		if err != nil {
			c.UI.Error(fmt.Sprintf("error opening cache: %v", err))
			return 1
		}
		defer database.Close(db)

		client.SetCacheStore(store)
		if err := model.EnableCache(ctx, cfg.CacheMaxAge()); err != nil {
			c.UI.Error(fmt.Sprintf("error enabling cache: %v", err))
			return 1
		}
	}

	opts := query.Options{
		Size:   c.flagSize,
		Page:   c.flagPage,
		Levels: c.flagLevels,
		Filter: c.flagFilter,
	}
	if c.flagSort != "" {
		opts.Sort = strings.Split(c.flagSort, ",")
	}

	page, err := model.EntriesWithMode(ctx, opts, mode)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error listing entries: %v", err))
		return 1
	}

	if err := c.Print(newListing(page)); err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	return 0
}

type listing struct {
	Count   int              `json:"count"`
	Total   int              `json:"total"`
	Offline bool             `json:"offline,omitempty"`
	Items   []map[string]any `json:"items"`
}

func newListing(p *datamanager.Pager[*datamanager.Entry]) listing {
	l := listing{
		Count:   p.Count,
		Total:   p.Total,
		Offline: p.Offline,
		Items:   make([]map[string]any, 0, len(p.Items)),
	}
	for _, e := range p.Items {
		item := e.Fields()
		item["_id"] = e.ID()
		l.Items = append(l.Items, item)
	}
	return l
}

// filterFlag collects -filter values.
type filterFlag map[string]query.Filter

func (f *filterFlag) String() string {
	return ""
}

func (f *filterFlag) Set(v string) error {
	field, value, ok := strings.Cut(v, "=")
	if !ok || field == "" || field == "~" {
		return fmt.Errorf("filter must be field=value or field~=value, got %q", v)
	}
	if *f == nil {
		*f = filterFlag{}
	}

	name, search := strings.CutSuffix(field, "~")
	flt := (*f)[name]
	if search {
		flt.Search = value
	} else {
		flt.Exact = value
	}
	(*f)[name] = flt
	return nil
}
