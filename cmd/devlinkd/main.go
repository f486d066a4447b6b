// devlinkd runs the command-and-bulk-transfer core against a serial-style
// stdio transport. It exists for bench work and integration against real
// link stacks, which attach through the devlink package directly.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	devlink "github.com/machinefabric/devlink-go"
)

func main() {
	app := &cli.App{
		Name:  "devlinkd",
		Usage: "device command & bulk-transfer daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the main loop with a serial transport on stdio",
				Action: runServe,
			},
			{
				Name:      "exec",
				Usage:     "execute one command line and exit",
				ArgsUsage: "\"<subsystem> <command> [arg]...\"",
				Action:    runExec,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func buildService(c *cli.Context) (*devlink.Service, fileConfig, *zap.Logger, error) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, cfg, nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, cfg, nil, err
	}
	svc := devlink.New(devlink.Config{
		StorageDir:    cfg.StorageDir,
		PrimaryPool:   cfg.PrimaryPool,
		SecondaryPool: cfg.SecondaryPool,
		Pacing:        time.Duration(cfg.Pacing),
	}, log)
	return svc, cfg, log, nil
}

func runServe(c *cli.Context) error {
	svc, cfg, log, err := buildService(c)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	svc.AttachSerial(os.Stdout, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stdin plays the link callback context: lines become deferred
	// commands, the main loop below executes them.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			svc.OnCommandLine(scanner.Text())
		}
		stop()
	}()

	log.Info("devlinkd serving",
		zap.String("storage", cfg.StorageDir),
		zap.Duration("tick", time.Duration(cfg.TickInterval)))
	svc.Run(ctx, time.Duration(cfg.TickInterval))
	return nil
}

func runExec(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exec takes exactly one quoted command line", 2)
	}
	svc, _, log, err := buildService(c)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	svc.AttachSerial(os.Stdout, nil)
	svc.OnCommandLine(c.Args().First())
	svc.Tick()
	return nil
}
