package base

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/datamanager/internal/config"
	"github.com/hashicorp-forge/datamanager/pkg/cache"
	"github.com/hashicorp-forge/datamanager/pkg/database"
	"github.com/hashicorp-forge/datamanager/pkg/datamanager"
)

// Command is embedded by every dm command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// Fs is where config files are read from.
	Fs afero.Fs
}

// Context returns a context that is canceled on interrupt.
func (c *Command) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// FlagSet is a flag.FlagSet that renders its own help.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f. Parse errors are returned rather than printed.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.SetOutput(io.Discard)
	return &FlagSet{FlagSet: f}
}

// Help returns the usage of every flag.
func (f *FlagSet) Help() string {
	var b strings.Builder
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s", fl.Name)
		if fl.DefValue != "" && fl.DefValue != "false" {
			fmt.Fprintf(&b, "=%s", fl.DefValue)
		}
		fmt.Fprintf(&b, "\n      %s\n", fl.Usage)
	})
	if b.Len() == 0 {
		return ""
	}
	return "\n\nOptions:\n" + b.String()
}

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DataCommand is embedded by commands that talk to a Data Manager.
type DataCommand struct {
	*Command

	flagConfig string
	flagFormat string
}

// DataFlags returns a flag set with the -config and -format flags.
func (c *DataCommand) DataFlags(name string) *FlagSet {
	f := NewFlagSet(flag.NewFlagSet(name, flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		fmt.Sprintf("[%s] Path to the dm config file (default %q)",
			config.PathEnvVar, config.DefaultPath),
	)
	f.StringVar(
		&c.flagFormat, "format", FormatJSON,
		"Output format (json, yaml)",
	)

	return f
}

// LoadConfig reads the config file named by -config, DM_CONFIG or the
// default path.
func (c *DataCommand) LoadConfig() (*config.Config, error) {
	path := c.flagConfig
	if val, ok := os.LookupEnv(config.PathEnvVar); ok && path == "" {
		path = val
	}
	if path == "" {
		path = config.DefaultPath
	}

	fs := c.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return config.Load(fs, path)
}

// NewClient creates a client for cfg.
func (c *DataCommand) NewClient(cfg *config.Config) (*datamanager.Client, error) {
	return datamanager.New(cfg.ClientConfig(c.Log))
}

// OpenCache opens the cache database configured in cfg.
func (c *DataCommand) OpenCache(cfg *config.Config) (*gorm.DB, *cache.GormStore, error) {
	dbCfg, ok := cfg.DatabaseConfig()
	if !ok {
		return nil, nil, fmt.Errorf("no cache block in config")
	}
	db, err := database.Connect(dbCfg, c.Log)
	if err != nil {
		return nil, nil, err
	}
	return db, cache.NewGormStore(db), nil
}

// Print writes v to the UI in the selected format.
func (c *DataCommand) Print(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding output: %w", err)
	}

	switch c.flagFormat {
	case FormatJSON, "":
		c.UI.Output(string(out))
	case FormatYAML:
		var doc any
		if err := json.Unmarshal(out, &doc); err != nil {
			return fmt.Errorf("error encoding output: %w", err)
		}
		y, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("error encoding output: %w", err)
		}
		c.UI.Output(strings.TrimRight(string(y), "\n"))
	default:
		return fmt.Errorf("unknown format %q", c.flagFormat)
	}
	return nil
}
