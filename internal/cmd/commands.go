package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/datamanager/internal/cmd/base"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/asseturl"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/cache"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/entries"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/entry"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/models"
	"github.com/hashicorp-forge/datamanager/internal/cmd/commands/version"
)

// Commands is the mapping of all available dm commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui, fs afero.Fs) {
	b := &base.Command{
		Log: log,
		UI:  ui,
		Fs:  fs,
	}
	data := func() *base.DataCommand {
		return &base.DataCommand{Command: b}
	}

	Commands = map[string]cli.CommandFactory{
		"models": func() (cli.Command, error) {
			return &models.Command{DataCommand: data()}, nil
		},
		"entries": func() (cli.Command, error) {
			return &entries.Command{DataCommand: data()}, nil
		},
		"entry": func() (cli.Command, error) {
			return &entry.Command{DataCommand: data()}, nil
		},
		"asset-url": func() (cli.Command, error) {
			return &asseturl.Command{DataCommand: data()}, nil
		},
		"cache": func() (cli.Command, error) {
			return &cache.Command{Command: b}, nil
		},
		"cache clear": func() (cli.Command, error) {
			return &cache.ClearCommand{DataCommand: data()}, nil
		},
		"cache status": func() (cli.Command, error) {
			return &cache.StatusCommand{DataCommand: data()}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
