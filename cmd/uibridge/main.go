package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/uibridge"
	"github.com/wippyai/uibridge/config"
	"github.com/wippyai/uibridge/interp"
	"github.com/wippyai/uibridge/runtime"
	"github.com/wippyai/uibridge/telemetry"
)

// libFlag collects -lib name@version=path entries.
type libFlag []string

func (l *libFlag) String() string     { return strings.Join(*l, ",") }
func (l *libFlag) Set(v string) error { *l = append(*l, v); return nil }

type options struct {
	source      string
	root        string
	payload     string
	config      string
	html        string
	wasm        string
	libs        libFlag
	otlp        string
	interactive bool
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "source", "", "Path to component source (.star)")
	flag.StringVar(&opts.root, "root", "", "Root component name")
	flag.StringVar(&opts.payload, "payload", "", "Path to a JSON payload (instead of -source/-root)")
	flag.StringVar(&opts.config, "config", "", "Path to a YAML config file")
	flag.StringVar(&opts.html, "html", "-", "Where to write the rendered HTML (- for stdout)")
	flag.StringVar(&opts.wasm, "wasm", "", "Path to a guest interpreter module (selects the wasm backend)")
	flag.Var(&opts.libs, "lib", "Preinstalled package name@version=path (repeatable)")
	flag.StringVar(&opts.otlp, "otlp", "", "OTLP gRPC collector address (overrides telemetry.endpoint)")
	flag.BoolVar(&opts.interactive, "i", false, "Interactive mode with TUI")
	version := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("uibridge %s (guest abi %d)\n", uibridge.Version, uibridge.ABIVersion)
		return
	}

	if opts.payload == "" && (opts.source == "" || opts.root == "") {
		fmt.Fprintln(os.Stderr, "Usage: uibridge -source <app.star> -root <Component> [-html out.html]")
		fmt.Fprintln(os.Stderr, "       uibridge -payload <payload.json> [-config uibridge.yaml]")
		fmt.Fprintln(os.Stderr, "       uibridge -source <app.star> -root <Component> -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg := config.Default()
	if opts.config != "" {
		loaded, err := config.Load(opts.config)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if opts.wasm != "" {
		cfg.Interp.Backend = config.BackendWasm
		cfg.Interp.WasmPath = opts.wasm
	}
	if opts.otlp != "" {
		cfg.Telemetry.Endpoint = opts.otlp
	}

	payload, err := loadPayload(opts)
	if err != nil {
		return err
	}

	lib, err := loadLibrary(opts.libs)
	if err != nil {
		return err
	}
	if opts.payload == "" {
		payload.Packages = lib.Names()
	}

	interactive := opts.interactive && term.IsTerminal(int(os.Stdout.Fd()))
	logger := zap.NewNop()
	if !interactive {
		if logger, err = cfg.Logger(); err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	defer func() { _ = logger.Sync() }()

	ropts := []runtime.Option{runtime.WithLogger(logger), runtime.WithLibrary(lib)}
	if cfg.Telemetry.Endpoint != "" {
		exporter, inst, err := telemetry.Export(ctx, telemetry.ExportConfig{
			ServiceName:    "uibridge",
			ServiceVersion: uibridge.Version,
			Endpoint:       cfg.Telemetry.Endpoint,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRate:     cfg.Telemetry.SampleRate,
		}, logger)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = exporter.Shutdown(sctx)
		}()
		ropts = append(ropts, runtime.WithInstruments(inst))
	}

	rt, err := runtime.New(ctx, cfg, ropts...)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	defer rt.Close(ctx)

	// Failures are already shown on the mount; the interactive host
	// displays them instead of exiting.
	if err := rt.Run(ctx, payload); err != nil && !interactive {
		_ = writeHTML(rt, opts.html)
		return fmt.Errorf("render %s: %w", payload.Root, err)
	}

	if interactive {
		return runInteractive(ctx, rt, payload)
	}
	if opts.interactive {
		logger.Warn("stdout is not a terminal, rendering once")
	}
	return writeHTML(rt, opts.html)
}

func loadPayload(opts options) (interp.Payload, error) {
	if opts.payload != "" {
		f, err := os.Open(opts.payload)
		if err != nil {
			return interp.Payload{}, fmt.Errorf("open payload: %w", err)
		}
		defer f.Close()
		p, err := interp.LoadPayload(f)
		if err != nil {
			return interp.Payload{}, fmt.Errorf("payload %s: %w", opts.payload, err)
		}
		if opts.root != "" {
			p.Root = opts.root
		}
		return p, nil
	}

	src, err := os.ReadFile(opts.source)
	if err != nil {
		return interp.Payload{}, fmt.Errorf("read source: %w", err)
	}
	return interp.Payload{
		Name:   filepath.Base(opts.source),
		Source: string(src),
		Root:   opts.root,
	}, nil
}

func loadLibrary(entries []string) (*interp.Library, error) {
	lib := interp.NewLibrary()
	for _, e := range entries {
		spec, path, ok := strings.Cut(e, "=")
		name, version := interp.ParseRequirement(spec)
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("-lib %q: want name@version=path", e)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read package %s: %w", name, err)
		}
		if err := lib.Add(name, version, string(src)); err != nil {
			return nil, fmt.Errorf("package %s: %w", name, err)
		}
	}
	return lib, nil
}

func writeHTML(rt *runtime.Runtime, dest string) error {
	var w io.Writer = os.Stdout
	if dest != "-" && dest != "" {
		f, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		defer f.Close()
		w = f
	}
	if err := rt.WriteHTML(w); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	if w == os.Stdout {
		fmt.Println()
	}
	return nil
}
