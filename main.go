package main

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

var errNoUsablePath = errors.New("no usable path in input")

var (
	flagLogLevel   string
	flagBackendURL string
	flagMock       bool
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "nooforge",
	Short: "Nooforge - drop files and text into the local knowledge base",
	Long: `Nooforge is a desktop front end for the local ingestion server.

Files dropped on the window (from a file manager or as a path dragged out of
an editor) are resolved to one canonical absolute path and ingested. Text can
be ingested directly, and the corpus can be searched or queried.

Without a subcommand the desktop window is started.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDesktop(loadRuntimeConfig(cmd))
	},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [raw...]",
	Short: "Print the canonical path for each raw drop string",
	Long: `Runs each argument (or each stdin line when there are none) through the
drop path normalizer and prints the canonical path, or "rejected".

Example:
  nooforge normalize 'file:///c%3A/Users/me/a.txt' '[{"resource":{"fsPath":"/home/me/b.md"}}]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			args = lines
		}
		writeNormalized(cmd.OutOrStdout(), args)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [raw...]",
	Short: "Ingest one file without opening the window",
	Long: `Treats the arguments as the candidates of a single drop: they are batched,
normalized, and the first canonical path is sent to the backend.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadRuntimeConfig(cmd)
		closer, err := InitLogger(cfg.LogLevel, flagVerbose)
		if err == nil {
			defer closer.Close()
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BackendTimeout()+cfg.DropDebounce()+time.Second)
		defer cancel()

		snap, err := ingestPaths(ctx, cfg, newBackend(cfg), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", snap.Input, snap.Result)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", AppName, AppVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: error, warn, info or debug")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend-url", "", "ingestion server base URL")
	rootCmd.PersistentFlags().BoolVar(&flagMock, "mock", false, "use the canned mock backend")
	ingestCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "also log to stderr")

	rootCmd.AddCommand(normalizeCmd, ingestCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntimeConfig reads the config file and applies flags set on cmd.
func loadRuntimeConfig(cmd *cobra.Command) *AppConfig {
	cfg := LoadConfig()
	applyFlags(cmd, cfg)
	return cfg
}

func applyFlags(cmd *cobra.Command, cfg *AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("backend-url") {
		cfg.BackendURL = flagBackendURL
		cfg.DiscoverBackend = false
	}
	if flags.Changed("mock") && flagMock {
		cfg.Backend = "mock"
	}
	cfg.normalize()
}

func runDesktop(cfg *AppConfig) error {
	cleanup := ensureSingleInstance()
	defer cleanup()

	closer, err := InitLogger(cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
	} else {
		defer closer.Close()
	}
	Log.Info("main: starting", "version", AppVersion, "backend", cfg.Backend, "url", cfg.BackendURL)

	app := NewIngestApp(cfg, newBackend(cfg), newNativeDropHost())
	err = wails.Run(&options.App{
		Title:             AppName,
		Width:             cfg.WindowWidth,
		Height:            cfg.WindowHeight,
		MinWidth:          480,
		MinHeight:         360,
		HideWindowOnClose: true,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		DragAndDrop: dragAndDropOptions(),
		OnStartup:   app.startup,
		OnDomReady:  app.onDomReady,
		OnShutdown:  app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		Log.Error("main: wails run failed", "error", err)
	}
	return err
}

// ingestPaths runs raws through one drop batch and waits for the backend
// to finish with the winner.
func ingestPaths(ctx context.Context, cfg *AppConfig, backend BackendInvoker, raws []string) (IngestSnapshot, error) {
	if len(normalizeDropPaths(raws)) == 0 {
		return IngestSnapshot{}, errNoUsablePath
	}

	done := make(chan IngestSnapshot, 1)
	coord := NewDropCoordinator(CoordinatorOptions{
		Backend:  backend,
		Debounce: cfg.DropDebounce(),
		OnFileStatus: func(s IngestSnapshot) {
			if s.Busy {
				return
			}
			select {
			case done <- s:
			default:
			}
		},
	})
	if err := coord.Mount(ctx, nil); err != nil {
		return IngestSnapshot{}, err
	}
	defer coord.Unmount()

	coord.NativeDrop(ctx, raws)

	select {
	case s := <-done:
		if s.Status == StatusError {
			return s, errors.New(s.Result)
		}
		return s, nil
	case <-ctx.Done():
		return IngestSnapshot{}, ctx.Err()
	}
}

func writeNormalized(w io.Writer, raws []string) {
	for _, raw := range raws {
		if p, ok := normalizeDropPath(raw); ok {
			fmt.Fprintln(w, p)
		} else {
			fmt.Fprintln(w, "rejected")
		}
	}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
