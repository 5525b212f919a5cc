// Command voicebrain is the CLI for the tiered routing and response
// engine: a serve command exposing the public query entry point over
// HTTP, and a validate command for checking tenant config files
// offline.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/voicebrain/engine/internal/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server exposing query, /healthz and /metrics."`
	Validate ValidateCmd `cmd:"" help:"Validate one or more tenant config files without serving."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("voicebrain %s\n", version)
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("voicebrain"),
		kong.Description("Tiered routing and response engine for a voice receptionist."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
	if err != nil {
		os.Exit(1)
	}
}
