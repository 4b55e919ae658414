// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/jeranaias/grok-cli/internal/config"
	"github.com/jeranaias/grok-cli/internal/logging"
	"github.com/jeranaias/grok-cli/internal/storage"
	"github.com/jeranaias/grok-cli/internal/xai"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

// App holds the state shared by every command of one invocation.
type App struct {
	build  BuildInfo
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// interactive is set when stdin and stdout are both terminals.
	interactive bool
	// color is set when ANSI styling is enabled for stdout.
	color   bool
	verbose bool

	cfg *config.Config
	log *zap.Logger
}

// New returns an App reading from stdin and writing to stdout and stderr.
func New(build BuildInfo, stdin io.Reader, stdout, stderr io.Writer) *App {
	return &App{
		build:       build,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		interactive: isTerminal(stdin) && isTerminal(stdout),
	}
}

// Run executes the command line args (without the program name) and
// returns the process exit code.
func Run(ctx context.Context, build BuildInfo, args []string) int {
	return New(build, os.Stdin, os.Stdout, os.Stderr).Run(ctx, args)
}

// Run executes args and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	args, noColor := a.parseGlobalFlags(args)

	a.color = !noColor && colorsEnabled(isTerminal(a.stdout))
	lipgloss.SetColorProfile(colorProfile(a.color))

	defer func() {
		if a.log != nil {
			_ = a.log.Sync()
		}
	}()

	if err := a.rootCommand().Execute(ctx, a.stdout, args); err != nil {
		a.printError(err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// parseGlobalFlags strips flags accepted anywhere on the command line.
func (a *App) parseGlobalFlags(args []string) ([]string, bool) {
	var rest []string
	noColor := false
	for i, arg := range args {
		switch arg {
		case "--verbose":
			a.verbose = true
		case "--no-color":
			noColor = true
		case "--":
			return append(rest, args[i:]...), noColor
		default:
			rest = append(rest, arg)
		}
	}
	return rest, noColor
}

// =============================================================================
// LAZY DEPENDENCIES
// =============================================================================

// config loads the configuration on first use.
func (a *App) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// logger builds the diagnostic logger on first use.
func (a *App) logger() *zap.Logger {
	if a.log != nil {
		return a.log
	}
	opts := logging.Options{Verbose: a.verbose}
	if a.cfg != nil {
		opts.Verbose = opts.Verbose || a.cfg.Log.Verbose
		opts.File = a.cfg.Log.File
	}
	log, err := logging.New(opts)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s %v\n", WarningStyle.Render("Warning:"), err)
		log = logging.Nop()
	}
	a.log = log
	return log
}

// client builds an xAI client from the configuration. It fails before any
// network I/O when no API key is configured.
func (a *App) client() (*xai.Client, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if !cfg.IsConfigured() {
		return nil, errMissingKey
	}

	opts := []xai.Option{xai.WithLogger(a.logger())}
	if rpm := cfg.API.RequestsPerMinute; rpm > 0 {
		opts = append(opts, xai.WithRateLimit(rpm))
	}
	return xai.NewClient(cfg.Transport(), opts...), nil
}

// openStore opens the transcript database in the data directory.
func (a *App) openStore() (*storage.Store, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}
	return storage.Open(filepath.Join(dir, storage.DefaultFileName))
}

// =============================================================================
// OUTPUT
// =============================================================================

func (a *App) printError(err error) {
	fmt.Fprintf(a.stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(a.stderr, DimStyle.Render(hint))
	}
}

func (a *App) printSuccess(format string, args ...any) {
	fmt.Fprintln(a.stdout, SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func (a *App) printInfo(format string, args ...any) {
	fmt.Fprintln(a.stderr, DimStyle.Render(fmt.Sprintf(format, args...)))
}

// spinnerEnabled reports whether a progress spinner may draw on stderr.
func (a *App) spinnerEnabled() bool {
	return a.color && isTerminal(a.stderr)
}

// markdown returns a renderer when stdout is a styled terminal.
func (a *App) markdown() *markdown {
	return newMarkdown(a.color && isTerminal(a.stdout), terminalWidth(a.stdout))
}
