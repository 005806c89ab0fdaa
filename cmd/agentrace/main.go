// Package main is the entry point for the agentrace CLI.
package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	// Load .env for API keys and NATS credentials
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentrace"),
		kong.Description("Delegate requests to subagents and reconstruct their execution traces."),
		kong.Vars(kongVars()),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// Run prints version information.
func (v *VersionCmd) Run() error {
	fmt.Printf("agentrace version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}
