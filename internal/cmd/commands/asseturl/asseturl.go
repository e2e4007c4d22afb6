package asseturl

import (
	"context"
	"fmt"

	"github.com/pkg/browser"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/pkg/datamanager"
)

// openURL is replaced in tests.
var openURL = browser.OpenURL

type Command struct {
	*base.DataCommand

	flagSize   int
	flagImage  bool
	flagThumb  bool
	flagLocale string
	flagLocal  bool
	flagOpen   bool
}

func (c *Command) Synopsis() string {
	return "Print the best file URL of an asset"
}

func (c *Command) Help() string {
	return `Usage: dm asset-url [options] <asset-id>

  Prints the URL of the file of an asset that best fits the requested
  locale and, for images, size. By default the API picks the file; with
  -local the asset is fetched and the file is picked here.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := c.DataFlags("asset-url")

	f.IntVar(&c.flagSize, "size", 0, "Minimum edge length in pixels (images only)")
	f.BoolVar(&c.flagImage, "image", false, "Select an original image")
	f.BoolVar(&c.flagThumb, "thumb", false, "Select a thumbnail")
	f.StringVar(&c.flagLocale, "locale", "", "Preferred locale, such as de_DE or an Accept-Language list")
	f.BoolVar(&c.flagLocal, "local", false, "Negotiate on the client from the asset's file list")
	f.BoolVar(&c.flagOpen, "open", false, "Open the URL in the default browser")

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected one argument: the asset ID")
		return 1
	}
	if c.flagImage && c.flagThumb {
		c.UI.Error("-image and -thumb are mutually exclusive")
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

	var u string
	if c.flagLocal {
		u, err = c.localURL(ctx, client, f.Arg(0))
	} else {
		u, err = c.remoteURL(ctx, client, f.Arg(0))
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("error resolving asset URL: %v", err))
		return 1
	}

	c.UI.Output(u)

	if c.flagOpen {
		if err := openURL(u); err != nil {
			c.UI.Warn(fmt.Sprintf("Could not open browser: %v", err))
		}
	}
	return 0
}

func (c *Command) remoteURL(ctx context.Context, client *datamanager.Client, id string) (string, error) {
	switch {
	case c.flagThumb:
		return client.ImageThumbURL(ctx, id, c.flagSize, c.flagLocale)
	case c.flagImage || c.flagSize > 0:
		return client.ImageURL(ctx, id, c.flagSize, c.flagLocale)
	}
	return client.FileURL(ctx, id, c.flagLocale)
}

func (c *Command) localURL(ctx context.Context, client *datamanager.Client, id string) (string, error) {
	a, err := client.Asset(ctx, id)
	if err != nil {
		return "", err
	}
	switch {
	case c.flagThumb:
		return a.ImageThumbURL(c.flagSize, c.flagLocale)
	case c.flagImage || c.flagSize > 0:
		return a.ImageURL(c.flagSize, c.flagLocale)
	}
	return a.FileURL(c.flagLocale)
}
