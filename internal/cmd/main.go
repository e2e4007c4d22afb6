package cmd

import (
	"bufio"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/datamanager/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	cliName := args[0]

	log := hclog.New(&hclog.LoggerOptions{
		Name:  cliName,
		Level: hclog.LevelFromString(os.Getenv("DM_LOG_LEVEL")),
	})

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	return run(args, log, ui, afero.NewOsFs())
}

func run(args []string, log hclog.Logger, ui cli.Ui, fs afero.Fs) int {
	cliName := args[0]

	if len(args) == 2 &&
		(args[1] == "-version" ||
			args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	initCommands(log, ui, fs)

	c := &cli.CLI{
		Name:       cliName,
		Args:       args[1:],
		Version:    version.FullVersion(),
		Commands:   Commands,
		HelpWriter: os.Stderr,
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	return exitCode
}
