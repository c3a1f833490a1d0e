package config

import (
	"flag"
	"fmt"
	"io"
)

// flagValues holds what was given on the command line.
//
// Supported flags:
//
//	-config string  JSON config file
//	-port int       HTTP listen port
//	-db string      SQLite database path
//	-log-level      zap level (debug, info, warn, error)
//	-dev            development (console) logging
type flagValues struct {
	configPath  string
	port        int
	dbPath      string
	logLevel    string
	development bool
	rest        []string

	set map[string]bool
}

func parseFlags(args []string) (*flagValues, error) {
	fv := &flagValues{set: map[string]bool{}}

	fs := flag.NewFlagSet("worktime", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&fv.configPath, "config", "", "path to JSON config file")
	fs.IntVar(&fv.port, "port", 0, "HTTP listen port")
	fs.StringVar(&fv.dbPath, "db", "", "SQLite database path")
	fs.StringVar(&fv.logLevel, "log-level", "", "log level")
	fs.BoolVar(&fv.development, "dev", false, "development logging")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	fs.Visit(func(f *flag.Flag) { fv.set[f.Name] = true })
	fv.rest = fs.Args()
	return fv, nil
}

// apply overrides cfg with the flags that were explicitly given.
func (fv *flagValues) apply(cfg *Config) {
	cfg.Args = fv.rest
	if fv.set["port"] {
		cfg.Port = fv.port
	}
	if fv.set["db"] {
		cfg.DBPath = fv.dbPath
	}
	if fv.set["log-level"] {
		cfg.LogLevel = fv.logLevel
	}
	if fv.set["dev"] {
		cfg.Development = fv.development
	}
}
