package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"scancoord/internal/engine"
	"scancoord/internal/progress"
	"scancoord/internal/schedule"
	"scancoord/internal/tui"
	"scancoord/internal/watch"
)

type watchFlags struct {
	tui   bool
	noTUI bool
	dark  bool
	skip  []string
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Rescan files as they change until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runWatch(cmd, g, f, dir)
		},
	}
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Force the interactive view")
	cmd.Flags().BoolVar(&f.noTUI, "no-tui", false, "Disable the interactive view")
	cmd.Flags().BoolVar(&f.dark, "dark", false, "Render icons for a dark theme")
	cmd.Flags().StringSliceVar(&f.skip, "skip", []string{"node_modules", "vendor"}, "Directory names to ignore (dot-directories are always ignored)")
	return cmd
}

func runWatch(cmd *cobra.Command, g *globalFlags, f *watchFlags, dir string) error {
	if f.tui && f.noTUI {
		return errors.New("cannot set both --tui and --no-tui")
	}
	a, err := g.load()
	if err != nil {
		return err
	}
	defer a.close()
	multi, err := a.engines()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = a.root
	}

	useTUI := interactiveTerminal()
	if f.tui {
		useTUI = true
	}
	if f.noTUI {
		useTUI = false
	}

	var (
		sink   progress.Sink
		events chan progress.Event
	)
	if useTUI {
		events = make(chan progress.Event, 256)
		sink = progress.NewChannelSink(events)
	} else {
		sink = progress.NewPlainSink(cmd.ErrOrStderr())
	}

	sess, err := a.openSession(sink, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	skip := append([]string{filepath.Base(a.cfg.LedgerDir)}, f.skip...)
	w, err := watch.New(sess, watch.Options{
		Root: dir,
		Skip: skip,
		Dark: f.dark,
		Scan: func(path string) schedule.ScanFunc {
			return engine.ScanFunc(multi, path, engine.FileContent(path))
		},
		Logger: a.log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := w.InspectAll()
	a.log.Infow("watching", "root", w.Root(), "files", n, "engines", len(multi.Engines()))

	if !useTUI {
		return w.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return w.Run(gctx)
	})
	grp.Go(func() error {
		defer cancel()
		return tui.Run(gctx, tui.Options{Events: events, Root: w.Root()})
	})
	return grp.Wait()
}
