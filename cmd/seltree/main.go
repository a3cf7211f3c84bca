package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/vanderheijden86/seltree/internal/datasource"
	"github.com/vanderheijden86/seltree/pkg/config"
	"github.com/vanderheijden86/seltree/pkg/debug"
	"github.com/vanderheijden86/seltree/pkg/metrics"
	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/ui"
	"github.com/vanderheijden86/seltree/pkg/version"
	"github.com/vanderheijden86/seltree/pkg/watcher"
)

func main() {
	configPath := flag.String("config", "", "Config file (default ~/.config/seltree/config.yaml)")
	dbPath := flag.String("db", "", "GIS database (overrides data.database)")
	selectionPath := flag.String("selection", "", "Selection document to watch (overrides data.selection_file)")
	keepTreeState := flag.Bool("keep-tree-state", false, "Keep expanded nodes and loaded relations when the selection changes")
	evaluate := flag.Bool("evaluate", false, "Load relationship classes together with their related records")
	dumpFlag := flag.Bool("dump", false, "Print the expanded tree and exit (default when stdout is not a terminal)")
	depth := flag.Int("depth", ui.DefaultExpandDepth, "Expansion depth of --dump")
	initDemo := flag.String("init-demo", "", "Create a demo database at `path` and exit")
	demoSize := flag.Int("demo-size", 8, "Features per layer of --init-demo")
	metricsFlag := flag.Bool("metrics", false, "Write fetch timings and cache hit rates to stderr on exit")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	flag.Usage = usage
	flag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Printf("seltree %s\n", version.String())
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Non-fatal: continue with defaults
		log.Printf("warning: %v", err)
	}
	applyFlags(&cfg, *dbPath, *selectionPath, *keepTreeState, *evaluate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *initDemo != "" {
		if err := runInitDemo(ctx, os.Stdout, *initDemo, *demoSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating demo database: %v\n", err)
			os.Exit(1)
		}
		return
	}

	store, err := datasource.OpenReadOnly(cfg.Data.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening GIS database: %v\n", err)
		fmt.Fprintln(os.Stderr, "Create one with 'seltree --init-demo PATH' or set data.database.")
		os.Exit(1)
	}
	defer store.Close()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "pick":
			if err := runPick(ctx, store, cfg.Data.SelectionFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command %q\n", flag.Arg(0))
			usage()
			os.Exit(2)
		}
	}

	layers, err := layerLookup(ctx, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading layers: %v\n", err)
		os.Exit(1)
	}

	set := selection.NewSet()
	reloader := watcher.NewReloader(set, store, cfg.Data.SelectionFile, func(err error) {
		log.Printf("warning: %v", err)
	})
	if err := reloader.Reload(ctx); err != nil {
		// The tree starts empty and fills on the next valid write.
		log.Printf("warning: %v", err)
	}

	interactive := !*dumpFlag && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		// Log lines would tear the alternate screen.
		if dir := config.StateDir(); dir != "" && os.MkdirAll(dir, 0o755) == nil {
			if f, err := tea.LogToFile(filepath.Join(dir, "seltree.log"), "seltree"); err == nil {
				defer f.Close()
			}
		}
	}

	loader := relations.NewLoader(store, relations.Options{
		Evaluate:       cfg.Tree.EvaluateRelationships,
		MaxConcurrency: cfg.Loader.MaxConcurrency,
		LogLevel:       relations.ParseLogLevel(cfg.Loader.LogLevel),
	})
	defer loader.Close()

	st := state.NewStore()

	if !interactive {
		if err := runDump(os.Stdout, st, set, loader, layers, dumpOptions{
			KeepTreeState: cfg.Tree.KeepTreeState,
			MaxDepth:      *depth,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *metricsFlag {
			_ = metrics.WriteReport(os.Stderr)
		}
		return
	}

	opts := ui.Options{
		KeepTreeState: cfg.Tree.KeepTreeState,
		TreeStatePath: config.TreeStatePath(),
		ShowDetails:   cfg.UI.ShowDetails,
		Reloader:      reloader,
	}
	w, err := watcher.New(cfg.Data.SelectionFile,
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithForcePoll(cfg.Watch.ForcePoll),
		watcher.WithOnError(func(err error) { log.Printf("warning: %v", err) }),
	)
	if err == nil {
		err = w.Start(ctx)
	}
	if err != nil {
		log.Printf("warning: not watching %s: %v", cfg.Data.SelectionFile, err)
	} else {
		defer w.Stop()
		debug.Log("main: watching %s (polling=%v)", w.Path(), w.IsPolling())
		opts.Watcher = w
	}

	m := ui.NewModel(st, set, loader, layers, opts)
	if err := runTUIProgram(m); err != nil {
		fmt.Printf("Error running seltree: %v\n", err)
		os.Exit(1)
	}
	if *metricsFlag {
		_ = metrics.WriteReport(os.Stderr)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: seltree [options] [pick]")
	fmt.Fprintln(out, "\nBrowse the features of a GIS selection and their related records.")
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintln(out, "  pick    choose features interactively and write the selection document")
	fmt.Fprintln(out, "\nOptions:")
	flag.PrintDefaults()
}

// loadConfig reads path, or the XDG config file when path is empty. On
// error the defaults are returned with it.
func loadConfig(path string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.DefaultConfig(), err
	}
	return cfg, nil
}

// applyFlags lets command-line flags override the config. Boolean flags can
// only switch a setting on.
func applyFlags(cfg *config.Config, db, selectionFile string, keepTreeState, evaluate bool) {
	if db != "" {
		cfg.Data.Database = db
	}
	if selectionFile != "" {
		cfg.Data.SelectionFile = selectionFile
	}
	if keepTreeState {
		cfg.Tree.KeepTreeState = true
	}
	if evaluate {
		cfg.Tree.EvaluateRelationships = true
	}
}

// layerLookup reads every layer once; layers do not change while seltree
// runs.
func layerLookup(ctx context.Context, store *datasource.Store) (ui.LayerLookup, error) {
	layers, err := store.Layers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Layer, len(layers))
	for _, l := range layers {
		byID[l.ID] = l
	}
	debug.Log("main: %d layers", len(byID))
	return func(id string) (model.Layer, bool) {
		l, ok := byID[id]
		return l, ok
	}, nil
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set SELTREE_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("SELTREE_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}
				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
