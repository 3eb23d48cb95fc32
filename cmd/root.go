package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scancoord/internal/config"
	"scancoord/internal/engine"
	"scancoord/internal/logging"
	"scancoord/internal/progress"
	"scancoord/internal/session"
	"scancoord/internal/version"
)

var errNoEngines = errors.New("no scan engines configured (add an engines: list to .scancoord/config.yaml)")

// Execute runs the CLI with args (without the program name).
func Execute(args []string) error {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

type globalFlags struct {
	root     string
	debug    bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "scancoord",
		Short:         "Coordinate static-analysis scanners over a workspace",
		Long:          "scancoord runs configured scanners over changed files, reconciles overlapping findings per line and keeps a per-workspace suppression ledger.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.root, "root", "", "Workspace root (default current directory)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(
		newScanCmd(g),
		newWatchCmd(g),
		newSuppressCmd(g),
		newSuppressionsCmd(g),
		newDiffCmd(),
		newDoctorCmd(g),
		newVersionCmd(),
	)
	return root
}

// app holds what every command needs once flags and config are resolved.
type app struct {
	root string
	cfg  config.Resolved
	log  *zap.SugaredLogger
}

func (g *globalFlags) load() (*app, error) {
	root := strings.TrimSpace(g.root)
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	raw, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	cfg, err := raw.Resolve(root)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if g.debug {
		cfg.Debug = true
	}
	if lvl := strings.TrimSpace(g.logLevel); lvl != "" {
		cfg.LogLevel = lvl
	}

	level := cfg.LogLevel
	if cfg.Debug && g.logLevel == "" {
		level = "debug"
	}
	log, err := logging.New(logging.Options{Debug: cfg.Debug, Level: level})
	if err != nil {
		return nil, err
	}
	return &app{root: root, cfg: cfg, log: log}, nil
}

func (a *app) engines() (*engine.Multi, error) {
	if len(a.cfg.Engines) == 0 {
		return nil, errNoEngines
	}
	specs := make([]engine.Spec, 0, len(a.cfg.Engines))
	for _, e := range a.cfg.Engines {
		specs = append(specs, engine.Spec{
			Name:    e.Name,
			Command: e.Command,
			Args:    e.Args,
			Parser:  e.Parser,
			Timeout: e.TimeoutDuration,
			Stdin:   e.Stdin,
			Env:     e.Env,
		})
	}
	m, err := engine.Build(specs, a.cfg.EngineWorkers, a.log)
	if err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return m, nil
}

func (a *app) openSession(sink progress.Sink, presenter session.Presenter) (*session.Session, error) {
	return session.Open(session.Options{
		Root:      a.root,
		LedgerDir: a.cfg.LedgerDir,
		Debounce:  a.cfg.Debounce,
		Workers:   a.cfg.Workers,
		Logger:    a.log,
		Sink:      sink,
		Presenter: presenter,
	})
}

func (a *app) close() {
	_ = a.log.Sync()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "scancoord %s\n", version.Version)
			return nil
		},
	}
}
