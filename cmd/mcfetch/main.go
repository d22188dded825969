package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// mirror drivers for --mirror
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"mcfetch/internal/config"
	"mcfetch/internal/logging"
	"mcfetch/internal/session"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitInitialFiles = 3
	ExitFileFailures = 4
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath  string
	root        string
	concurrency int
	attempts    int
	mirror      string
	useDoH      bool
	noVerify    bool
	logLevel    string
	logFile     string
	noTUI       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	// anything not tagged came from cobra's own argument and flag parsing
	fmt.Fprintln(stderr, "Error:", err)
	return ExitInvalidArgs
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "mcfetch",
		Short:         "Download and verify game versions with bounded concurrency",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVarP(&g.root, "root", "r", "", "Game root directory (default .minecraft)")
	pf.IntVarP(&g.concurrency, "concurrency", "c", 0, "Maximum simultaneous downloads (default 64)")
	pf.IntVar(&g.attempts, "attempts", 0, "Attempts per file (default 1)")
	pf.StringVar(&g.mirror, "mirror", "", "Blob bucket URL to download from instead of the origins")
	pf.BoolVarP(&g.useDoH, "doh", "s", false, "Resolve hosts with DNS over HTTPS")
	pf.BoolVar(&g.noVerify, "no-verify", false, "Skip the checksum check after each write")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.logFile, "log-file", "", "Write logs to this file")
	pf.BoolVar(&g.noTUI, "no-tui", false, "Plain progress output instead of the interactive view")

	rootCmd.AddCommand(newInstallCmd(g), newVerifyCmd(g), newVersionsCmd(g))
	return rootCmd
}

// loadConfig layers defaults, the config file, MCFETCH_* variables and
// flags, in that order.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(g.configPath); err != nil {
			return cfg, withCode(ExitInvalidArgs, err)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, withCode(ExitInvalidArgs, err)
	}

	cfg = cfg.Merge(config.Config{
		Root:        g.root,
		Concurrency: g.concurrency,
		Attempts:    g.attempts,
		Mirror:      g.mirror,
		DoH:         g.useDoH,
		LogLevel:    g.logLevel,
	})
	if cmd.Flags().Changed("concurrency") && g.concurrency < 1 {
		return cfg, withCode(ExitInvalidArgs, fmt.Errorf("--concurrency must be positive, got %d", g.concurrency))
	}
	if g.noVerify {
		cfg.VerifyAfterWrite = false
	}

	if err := cfg.Validate(); err != nil {
		return cfg, withCode(ExitInvalidArgs, err)
	}
	return cfg, nil
}

// logger opens the log destination. interactive is true when the TUI owns
// the terminal; logs are then dropped unless --log-file is set.
func (g *globalFlags) logger(cfg config.Config, stderr io.Writer, interactive bool) (*slog.Logger, func(), error) {
	level := logging.ParseLevel(cfg.LogLevel)
	switch {
	case g.logFile != "":
		f, err := os.OpenFile(g.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, withCode(ExitGeneralError, fmt.Errorf("open log file: %w", err))
		}
		return logging.Init(level, cfg.LogFormat, f), func() { f.Close() }, nil
	case interactive:
		return logging.Init(level, cfg.LogFormat, io.Discard), func() {}, nil
	default:
		return logging.Init(level, cfg.LogFormat, stderr), func() {}, nil
	}
}

// openSession wires a session for cmd and returns a cleanup function.
func (g *globalFlags) openSession(cmd *cobra.Command, interactive bool) (*session.Session, func(), error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := g.logger(cfg, cmd.ErrOrStderr(), interactive)
	if err != nil {
		return nil, nil, err
	}

	src, closeSrc, err := session.OpenSource(cmd.Context(), cfg)
	if err != nil {
		closeLog()
		return nil, nil, withCode(ExitInvalidArgs, err)
	}
	s, err := session.New(session.Options{Config: cfg, Source: src, Logger: logger})
	if err != nil {
		closeSrc()
		closeLog()
		return nil, nil, withCode(ExitInvalidArgs, err)
	}
	return s, func() {
		closeSrc()
		closeLog()
	}, nil
}
