// Command meshgdb runs the GDB Remote Serial Protocol debug server that
// bridges a GDB client to a many-core mesh accelerator.
//
// Grounded on aykevl-emculator/main.go's flat single-mode flag shape
// (ram/flash/pagesize/loglevel/gdb), reimplemented with a urfave/cli.v2
// App + single Action per SPEC_FULL.md's CLI expansion rather than the
// teacher's raw flag package.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/urfave/cli.v2"

	"github.com/coremesh/meshgdb/internal/config"
	"github.com/coremesh/meshgdb/internal/conn"
	"github.com/coremesh/meshgdb/internal/gdbserver"
	"github.com/coremesh/meshgdb/internal/hostio"
	gdblog "github.com/coremesh/meshgdb/internal/log"
	"github.com/coremesh/meshgdb/internal/platform"
	"github.com/coremesh/meshgdb/internal/target"
)

func main() {
	app := &cli.App{
		Name:    "meshgdb",
		Usage:   "GDB Remote Serial Protocol debug server for a core mesh",
		Version: "v0.1.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP port to listen on",
				Value:   config.DefaultPort,
			},
			&cli.StringFlag{
				Name:  "platform",
				Usage: "path to the platform description (JSON: chips + external banks)",
			},
			&cli.StringFlag{
				Name:  "tty",
				Usage: "redirect trap-7 formatted prints to a tty",
			},
			&cli.BoolFlag{
				Name:  "dont-halt-on-attach",
				Usage: "do not halt the mesh on vAttach",
			},
			&cli.BoolFlag{
				Name:  "check-hw-address",
				Usage: "enable strict global-address validation",
			},
			&cli.StringSliceFlag{
				Name:    "d",
				Aliases: []string{"diag"},
				Usage:   "enable a diagnostic logging class (repeatable): stop-resume, trap-and-rsp-con, stop-resume-detail, target-wr, ctrl-c-wait, tran-detail, hw-detail, timing",
			},
		},
		Action: run,
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "meshgdb:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := gdblog.NewLogger(os.Stderr)

	cfg, err := config.New(
		c.Int("port"),
		c.String("tty"),
		c.Bool("dont-halt-on-attach"),
		c.Bool("check-hw-address"),
		c.StringSlice("d"),
		os.Getenv("EMULATOR_TARGET"),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}

	platformPath := c.String("platform")
	if platformPath == "" {
		return cli.Exit("error: --platform <path> is required", 1)
	}
	desc, err := loadPlatform(platformPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot initialise platform: %v", err), 1)
	}

	// Only the sim/esim backends can be satisfied without a real device
	// driver handle; hw/pal require one to be wired in by the (out of
	// scope) hardware bring-up layer.
	tg, err := target.New(cfg.Backend, desc, nil, cfg.CheckHWAddress)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot initialise target: %v", err), 1)
	}

	opts := gdbserver.DefaultOptions()
	opts.DontHaltOnAttach = cfg.DontHaltOnAttach

	srv := gdbserver.New(tg, logger, opts)

	if cfg.TTYPath != "" {
		sink, err := hostio.OpenTTY(cfg.TTYPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open --tty %s: %v", cfg.TTYPath, err), 1)
		}
		defer sink.Close()
		srv.SetTTYSink(sink)
	}

	mgr, err := conn.Listen(cfg.Addr(), srv, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot bind port: %v", err), 1)
	}
	defer mgr.Close()

	logger.Info("meshgdb listening", "addr", mgr.Addr().String(), "backend", string(cfg.Backend))
	return mgr.Serve()
}

// loadPlatform is a minimal stand-in for the out-of-scope platform
// description loader named in spec.md §6.1: it reads a JSON document
// shaped like platform.Description directly, since this repository's
// core only ever consumes the parsed struct, never the source file
// format.
func loadPlatform(path string) (platform.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return platform.Description{}, err
	}
	var desc platform.Description
	if err := json.Unmarshal(data, &desc); err != nil {
		return platform.Description{}, fmt.Errorf("parsing platform description: %w", err)
	}
	if len(desc.Chips) == 0 {
		return platform.Description{}, fmt.Errorf("platform description names no chips")
	}
	return desc, nil
}
