package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dailydispatch/internal/app"
	"dailydispatch/internal/dispatch"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: dispatch [flags] <command> [campaign]

commands:
  run <campaign>     send today's messages for a campaign
  prune <campaign>   drop history entries older than the retention window
  campaigns          list configured campaigns
  serve              run campaigns on their schedules until interrupted

flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		cfgPath string
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./dispatch.yaml", "path to config (yaml or json)")
	flag.BoolVar(&dryRun, "dry-run", false, "log messages instead of sending them")
	flag.Usage = usage
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfgPath, dryRun, flag.Args())
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, cfgPath string, dryRun bool, args []string) int {
	if len(args) == 0 {
		usage()
		return exitFailure
	}
	cmd, rest := args[0], args[1:]
	campaign := func() (string, bool) {
		if len(rest) != 1 {
			fmt.Printf("fatal: %s needs exactly one campaign name\n", cmd)
			return "", false
		}
		return rest[0], true
	}

	a, err := app.New(cfgPath, app.Options{DryRun: dryRun})
	if err != nil {
		fmt.Println("fatal:", err)
		return exitFailure
	}
	defer a.Close()

	switch cmd {
	case "run":
		name, ok := campaign()
		if !ok {
			return exitFailure
		}
		_, err = a.RunCampaign(ctx, name)
	case "prune":
		name, ok := campaign()
		if !ok {
			return exitFailure
		}
		var removed int
		if removed, err = a.Prune(ctx, name); err == nil {
			fmt.Printf("pruned %d entries from %s history\n", removed, name)
		}
	case "campaigns":
		for _, name := range a.Config().CampaignNames() {
			fmt.Println(name)
		}
	case "serve":
		err = a.Serve(ctx)
	default:
		fmt.Printf("fatal: unknown command %q\n", cmd)
		usage()
		return exitFailure
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, dispatch.ErrInterrupted):
		fmt.Println("interrupted:", err)
		return exitInterrupted
	default:
		fmt.Println("fatal:", err)
		return exitFailure
	}
}
