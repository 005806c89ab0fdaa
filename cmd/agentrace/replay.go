package main

import (
	"os"

	"github.com/vinayprograms/agentrace/internal/config"
	"github.com/vinayprograms/agentrace/internal/replay"
)

// Run replays an event log. Naming options come from the config so the
// rebuilt tree matches the live one.
func (c *ReplayCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	rt := &runtime{cfg: cfg}
	engineOpts, err := rt.engineOptions()
	if err != nil {
		return err
	}
	r := replay.New(os.Stdout, c.Verbose, engineOpts)

	// Use the interactive pager when stdout is a TTY and it is not disabled
	interactive := !c.NoPager && isTerminal(os.Stdout)
	switch {
	case c.Live && interactive:
		return r.ReplayFileLive(c.Log)
	case interactive:
		return r.ReplayFileInteractive(c.Log)
	default:
		return r.ReplayFile(c.Log)
	}
}

// loadConfig loads only the config file, for commands that need nothing else.
func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config != "" {
		return config.LoadFile(cli.Config)
	}
	return config.LoadDefault()
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
