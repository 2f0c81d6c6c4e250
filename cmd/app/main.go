package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "configs/config.yaml", "path to the YAML configuration file")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&serveCmd{}, "server")

	commander.Register(&quoteCmd{}, "market")
	commander.Register(&quotesCmd{}, "market")

	commander.Register(&orderCmd{side: "buy"}, "trading")
	commander.Register(&orderCmd{side: "sell"}, "trading")
	commander.Register(&portfolioCmd{}, "trading")
	commander.Register(&assetsCmd{}, "trading")
	commander.Register(&checkInCmd{}, "trading")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
