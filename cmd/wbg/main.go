package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/env"
	"github.com/wippyai/wasm-bridge/internal/guest"
)

type options struct {
	configPath  string
	module      string
	context     string
	markup      string
	logLevel    string
	memoryPages uint
	handleBase  uint
	noStream    bool
	dev         bool
	demo        bool
	list        bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.module, "wasm", "", "Module path or http(s) URL (default "+bridge.DefaultPath+")")
	flag.StringVar(&o.context, "context", "", "Calling context: window, worker or node")
	flag.StringVar(&o.markup, "markup", "", "Initial document markup")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.UintVar(&o.memoryPages, "memory-pages", 0, "Memory limit in 64KiB pages (0 = runtime default)")
	flag.UintVar(&o.handleBase, "handle-base", bridge.DefaultHandleBase, "First reserved handle index")
	flag.BoolVar(&o.noStream, "no-stream", false, "Disable streaming compilation")
	flag.BoolVar(&o.dev, "dev", false, "Development logging")
	flag.BoolVar(&o.demo, "demo", false, "Run the built-in demo module")
	flag.BoolVar(&o.list, "list", false, "List imports and exports and exit")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, &o, setFlags())

	if o.interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, o.demo); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, o.demo, o.list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags overrides file values with explicitly set flags.
func applyFlags(cfg *Config, o *options, set map[string]bool) {
	if set["wasm"] {
		cfg.Module = o.module
	}
	if set["context"] {
		cfg.Environment.Context = o.context
	}
	if set["markup"] {
		cfg.Environment.Markup = o.markup
	}
	if set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if set["dev"] {
		cfg.Log.Development = o.dev
	}
	if set["memory-pages"] {
		cfg.Engine.MemoryLimitPages = uint32(o.memoryPages)
	}
	if set["handle-base"] {
		cfg.Bridge.HandleBase = uint32(o.handleBase)
	}
	if set["no-stream"] {
		streaming := !o.noStream
		cfg.Bridge.Streaming = &streaming
	}
}

// source picks the module source for the configured location.
func source(cfg *Config, demo bool) *bridge.Source {
	switch {
	case demo:
		return bridge.FromBytes(guest.Build())
	case strings.HasPrefix(cfg.Module, "http://"), strings.HasPrefix(cfg.Module, "https://"):
		return bridge.FromURL(cfg.Module)
	}
	return bridge.FromFile(cfg.Module)
}

// session is a bridge with a recording console wired to the log.
type session struct {
	bridge  *bridge.Bridge
	exports *bridge.Exports
	console *env.RecordingConsole
	log     *zap.Logger
}

func openSession(ctx context.Context, cfg *Config, demo bool) (*session, error) {
	log, err := cfg.logger()
	if err != nil {
		return nil, err
	}

	rec := env.NewRecordingConsole()
	e, err := cfg.environment(env.Tee(rec, env.NewZapConsole(log)))
	if err != nil {
		log.Sync()
		return nil, err
	}

	b, err := bridge.New(ctx, cfg.bridgeOptions(log, e)...)
	if err != nil {
		log.Sync()
		return nil, err
	}

	ex, err := b.Instantiate(ctx, source(cfg, demo))
	if err != nil {
		b.Close(ctx)
		log.Sync()
		return nil, err
	}
	return &session{bridge: b, exports: ex, console: rec, log: log}, nil
}

func (s *session) close(ctx context.Context) {
	s.bridge.Close(ctx)
	s.log.Sync()
}

func run(cfg *Config, demo, listOnly bool) error {
	ctx := context.Background()

	s, err := openSession(ctx, cfg, demo)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	if listOnly {
		for _, name := range exportNames(s.exports) {
			fmt.Println(name)
		}
		return nil
	}

	if !s.exports.Has("main") {
		fmt.Println("Module has no main export; instantiated only.")
	} else if err := s.exports.Main(ctx); err != nil {
		return fmt.Errorf("main: %w", err)
	}

	printConsole(s.console)
	fmt.Printf("\n--- document ---\n%s\n", s.bridge.Environment().Document().Render())
	return nil
}

func exportNames(ex *bridge.Exports) []string {
	var names []string
	for name, def := range ex.Functions() {
		names = append(names, fmt.Sprintf("%s(%d) -> %d", name, len(def.ParamTypes()), len(def.ResultTypes())))
	}
	sort.Strings(names)
	return names
}

func printConsole(rec *env.RecordingConsole) {
	entries := rec.Entries()
	if len(entries) == 0 {
		return
	}
	fmt.Println("--- console ---")
	for _, e := range entries {
		fmt.Printf("[%s] %s\n", e.Level, e.Message)
	}
}
