package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/example/weekwise/internal/logging"
)

type CLI struct {
	Server   string `help:"Weekwise API base URL." env:"WEEKWISE_SERVER" default:"http://localhost:8080"`
	Token    string `help:"Bearer token. Falls back to the token stored by 'login'." env:"WEEKWISE_TOKEN"`
	Timezone string `help:"IANA time zone used to decide which dates are in the past." env:"WEEKWISE_TIMEZONE" default:"Local"`
	LogLevel string `help:"Log level (debug, info, warn, error)." env:"WEEKWISE_LOG_LEVEL" default:"warn"`
	LogFile  string `help:"Also write logs to this file, rotated by size." env:"WEEKWISE_LOG_FILE" type:"path"`

	Login  LoginCmd  `cmd:"" help:"Store a token in the OS keyring."`
	Logout LogoutCmd `cmd:"" help:"Remove the stored token from the OS keyring."`
	Week   WeekCmd   `cmd:"" help:"Show the seven days starting at a date." default:"1"`
	Rules  struct {
		Add  RulesAddCmd  `cmd:"" help:"Add a weekly recurring slot."`
		List RulesListCmd `cmd:"" help:"List active rules."`
		Rm   RulesRmCmd   `cmd:"" help:"Delete a rule and every future occurrence."`
	} `cmd:"" help:"Manage recurring rules."`
	Slot struct {
		Edit SlotEditCmd `cmd:"" help:"Change the times of one occurrence."`
		Rm   SlotRmCmd   `cmd:"" help:"Cancel one occurrence."`
	} `cmd:"" help:"Edit single occurrences."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, time.Now); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, now func() time.Time) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("weekwisectl"),
		kong.Description("Manage weekly recurring time slots."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, closer, err := logging.NewCLILogger(stderr, logging.Options{Level: cli.LogLevel, File: cli.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	location, err := time.LoadLocation(cli.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cli.Timezone, err)
	}

	app := &App{
		ctx:      ctx,
		cli:      &cli,
		in:       stdin,
		out:      stdout,
		logger:   logger,
		location: location,
		now:      now,
	}
	defer app.Close()

	return kctx.Run(app)
}
