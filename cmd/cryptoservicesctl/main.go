// cryptoservicesctl inspects and exercises the crypto services registrar.
package main

import (
	"flag"
	"fmt"
	"os"

	"cryptoservices/internal/config"
	"cryptoservices/internal/logging"
	"cryptoservices/internal/registrar"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "status":
		cmdStatus(args)
	case "sample":
		cmdSample(args)
	case "random":
		cmdRandom(args)
	case "params":
		cmdParams(args)
	case "audit":
		cmdAudit(args)
	case "serve":
		cmdServe(args)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `cryptoservicesctl - Crypto services control utility

Usage: cryptoservicesctl [options] <command> [args]

Commands:
  status          Show entropy strategy, native services and constraints
  sample          Draw samples from the default entropy source provider
  random          Write bytes from the default secure random
  params          List the default DSA and DH parameter sets
  audit           Show or prune the audit trail
  serve           Expose metrics and apply configuration changes live
  help            Show this help message

Options:
  -config <path>  Path to config file (default: searched in the config dir)`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) *logging.Logger {
	lc, err := cfg.LoggingSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid logging config: %v\n", err)
		os.Exit(1)
	}
	lc.Component = "cryptoservicesctl"
	logger, err := logging.New(lc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	return logger
}

// openRegistrar builds a registrar from the loaded configuration.
func openRegistrar(cfg *config.Config, logger *logging.Logger) *registrar.Registrar {
	r, err := registrar.New(registrar.WithConfig(cfg), registrar.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting crypto services: %v\n", err)
		os.Exit(1)
	}
	return r
}
