// Package config handles command line parsing and loading/validation of
// the rotator's JSON configuration file.
package config

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/venomlabs/bmrotate/internal/logger"
	"github.com/venomlabs/bmrotate/internal/vars"
)

// Opts represents the command line surface.
type Opts struct {
	// betteralign:ignore

	Config    string `short:"c" long:"config" env:"BMROTATE_CONFIG" description:"Path to JSON configuration file" default:"config.json"`
	Server    string `short:"s" long:"server" description:"Rotate a single server by its id (default: rotate all enabled servers)"`
	List      bool   `short:"l" long:"list" description:"List configured servers and their state, no rotation"`
	Scheduler bool   `long:"scheduler" description:"Run the rotation scheduler until interrupted"`
	History   int    `long:"history" description:"Show the last N rotation history records" optional:"true" optional-value:"20"`

	Logger logger.Config `group:"Logger Options" namespace:"log" env-namespace:"BMROTATE_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// ParseArgs reads the command line flags and environment variables.
// It terminates the application on parse errors or when help or version
// output was requested.
func ParseArgs() *Opts {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	parser.NamespaceDelimiter = "-"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}

	if opts.Version {
		vars.Print()
		os.Exit(0)
	}

	return &opts
}
