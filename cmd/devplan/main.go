// Command devplan assigns a device to every expression of the programs in
// one or more plan files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/orizon-lang/devplan/internal/cli"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		showHelp    = flag.Bool("help", false, "show help information")
		jsonOutput  = flag.Bool("json", false, "output version in JSON format")
		configPath  = flag.String("config", "", "tool configuration file (JSON)")
		saveConfig  = flag.String("save-config", "", "write the effective configuration to this file and exit")
		watch       = flag.Bool("watch", false, "re-plan files when they change")
		dump        = flag.Bool("dump", false, "print every expression and call with its device domain")
		jobs        = flag.Int("jobs", 0, "number of files planned concurrently (default: number of CPUs)")
		maxErrors   = flag.Int("max-errors", 0, "stop reporting after this many errors")
		verbose     = flag.Bool("verbose", false, "verbose output")
		debug       = flag.Bool("debug", false, "trace unification and defaulting")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] PLAN.yaml...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Device planner for tensor programs.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s model.yaml                  # Plan one file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dump a.yaml b.yaml        # Plan two files and dump domains\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --watch model.yaml          # Re-plan on every save\n", os.Args[0])
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		cli.PrintVersion(os.Stdout, "devplan", *jsonOutput)
		os.Exit(0)
	}

	config, err := cli.LoadConfig(*configPath)
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	// Explicit flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dump":
			config.Dump = *dump
		case "jobs":
			if *jobs > 0 {
				config.Jobs = *jobs
			}
		case "max-errors":
			config.MaxErrors = *maxErrors
		case "verbose":
			config.Verbose = *verbose
		case "debug":
			config.Debug = *debug
		}
	})

	if *saveConfig != "" {
		if err := config.SaveConfig(*saveConfig); err != nil {
			cli.ExitWithError("%v", err)
		}

		os.Exit(0)
	}

	paths := flag.Args()
	if len(paths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	r := &runner{
		config: config,
		logger: cli.NewLogger(config.Verbose, config.Debug),
		out:    os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ok, err := r.planAll(ctx, paths)
	if err != nil {
		cli.ExitWithError("%v", err)
	}

	if *watch {
		if err := r.watch(ctx, paths); err != nil {
			cli.ExitWithError("%v", err)
		}

		return
	}

	if !ok {
		os.Exit(1)
	}
}
