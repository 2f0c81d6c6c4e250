package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"virtual_market/internal/app"
	"virtual_market/internal/service"

	"github.com/google/subcommands"
)

// run boots the application, runs fn against the trading service and prints its result as JSON.
func run(ctx context.Context, fn func(ctx context.Context, svc *service.TradingService) (any, error)) subcommands.ExitStatus {
	bootstrap := app.NewBootstrap()
	defer bootstrap.Close()

	// Keep stdout for the result
	if err := bootstrap.Initialize(ctx, *configPath, io.Discard); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}

	result, err := fn(ctx, bootstrap.Trading)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// --- quoteCmd ---

type quoteCmd struct{}

func (*quoteCmd) Name() string             { return "quote" }
func (*quoteCmd) Synopsis() string         { return "prints the current quote of a symbol" }
func (*quoteCmd) Usage() string            { return "quote <symbol>\n" }
func (*quoteCmd) SetFlags(_ *flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one symbol is required.")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		return svc.Quote(ctx, f.Arg(0))
	})
}

// --- quotesCmd ---

type quotesCmd struct {
	board bool
}

func (*quotesCmd) Name() string     { return "quotes" }
func (*quotesCmd) Synopsis() string { return "lists every quote, best performer first" }
func (*quotesCmd) Usage() string    { return "quotes [-leaderboard]\n" }
func (c *quotesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.board, "leaderboard", false, "print top gainers and bottom losers only")
}

func (c *quotesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		if c.board {
			return svc.Leaderboard(ctx, service.DefaultLeaderboardTop, service.DefaultLeaderboardBottom)
		}
		return svc.ListQuotes(ctx)
	})
}

// --- orderCmd ---

type orderCmd struct {
	side string // "buy" or "sell"
	user string
}

func (c *orderCmd) Name() string { return c.side }
func (c *orderCmd) Synopsis() string {
	return c.side + "s shares at the current quote"
}
func (c *orderCmd) Usage() string {
	return c.side + " -user <id> <symbol> <quantity>\n"
}
func (c *orderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id")
}

func (c *orderCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" || f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Error: -user, symbol and quantity are required.")
		return subcommands.ExitUsageError
	}
	qty, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: quantity must be an integer.")
		return subcommands.ExitUsageError
	}

	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		if c.side == "sell" {
			return svc.Sell(ctx, c.user, f.Arg(0), qty)
		}
		return svc.Buy(ctx, c.user, f.Arg(0), qty)
	})
}

// --- portfolioCmd ---

type portfolioCmd struct {
	user string
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "prints positions and totals, granting starter funds if broke" }
func (*portfolioCmd) Usage() string    { return "portfolio -user <id>\n" }
func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		return svc.Portfolio(ctx, c.user)
	})
}

// --- assetsCmd ---

type assetsCmd struct {
	user string
}

func (*assetsCmd) Name() string     { return "assets" }
func (*assetsCmd) Synopsis() string { return "prints cash, stock value and total" }
func (*assetsCmd) Usage() string    { return "assets -user <id>\n" }
func (c *assetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id")
}

func (c *assetsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		return svc.Assets(ctx, c.user)
	})
}

// --- checkInCmd ---

type checkInCmd struct {
	user string
}

func (*checkInCmd) Name() string     { return "checkin" }
func (*checkInCmd) Synopsis() string { return "claims the daily reward" }
func (*checkInCmd) Usage() string    { return "checkin -user <id>\n" }
func (c *checkInCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id")
}

func (c *checkInCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required.")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, svc *service.TradingService) (any, error) {
		return svc.CheckIn(ctx, c.user)
	})
}
