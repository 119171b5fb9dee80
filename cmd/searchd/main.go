package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foldsync/searchd/internal/cache"
	"github.com/foldsync/searchd/internal/config"
	"github.com/foldsync/searchd/internal/daemon"
	"github.com/foldsync/searchd/internal/reindex"
	"github.com/foldsync/searchd/internal/status"
)

var (
	defaultModelsDir = "./models"
	defaultOrtLib    = "./lib/onnxruntime.so"
	defaultStoreDir  = "~/.cache/searchd/store"
)

func main() {
	var (
		configPath string
		logLevel   string
		modelsDir  string
		ortLib     string
		numThreads int
		storeDir   string
		cachePath  string
		statusPath string
		mboxPath   string
	)

	root := &cobra.Command{
		Use:   "searchd",
		Short: "Incremental semantic-index sync daemon",
		Long:  "searchd watches configured folders and keeps a local semantic vector index of their documents in sync.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (default: "+config.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging verbosity: debug, info, warn, error")
	root.PersistentFlags().StringVar(&modelsDir, "models-dir", defaultModelsDir, "directory of model subdirectories (model.onnx + tokenizer.json each)")
	root.PersistentFlags().StringVar(&ortLib, "ort-lib", defaultOrtLib, "path to onnxruntime.so (empty = system default)")
	root.PersistentFlags().IntVar(&numThreads, "threads", 0, "ONNX intra-op thread count (0 = auto)")
	root.PersistentFlags().StringVar(&storeDir, "store-dir", defaultStoreDir, "directory the vector store persists collections under")
	root.PersistentFlags().StringVar(&cachePath, "cache-path", cache.DefaultPath, "path to the file-index cache")
	root.PersistentFlags().StringVar(&statusPath, "status-path", status.DefaultPath, "path to the status snapshot file")
	root.PersistentFlags().StringVar(&mboxPath, "mailbox-path", reindex.DefaultPath, "path to the reindex-request mailbox")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, logFile, err := setupLogging(logLevel)
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}
			slog.SetDefault(logger)
			quietNoisyLoggers()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			d, err := daemon.New(cfg, daemon.Options{
				StoreDir:    storeDir,
				CachePath:   cachePath,
				StatusPath:  statusPath,
				MailboxPath: mboxPath,
				ModelsDir:   modelsDir,
				OrtLibPath:  ortLib,
				NumThreads:  numThreads,
			}, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return d.Run(ctx)
		},
	}

	requestReindexCmd := &cobra.Command{
		Use:   "request-reindex <folder>",
		Short: "Request a full rescan of a watched folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			mb, err := reindex.Open(mboxPath)
			if err != nil {
				return err
			}
			if err := mb.Request(abs); err != nil {
				return err
			}
			fmt.Printf("reindex requested for %s\n", abs)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the daemon's current status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := config.ExpandPath(coalesce(statusPath, status.DefaultPath))
			if err != nil {
				return err
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return fmt.Errorf("read status file: %w", err)
			}
			var pretty map[string]any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return fmt.Errorf("parse status file: %w", err)
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	root.AddCommand(runCmd, requestReindexCmd, statusCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func coalesce(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// setupLogging builds a daemon.log file plus stdout, both through the
// same handler so formatting matches.
func setupLogging(level string) (*slog.Logger, *os.File, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	logDir, err := config.ExpandPath("~/.cache/searchd")
	if err != nil {
		return nil, nil, fmt.Errorf("resolve log dir: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir %s: %w", logDir, err)
	}

	logFile, err := os.OpenFile(filepath.Join(logDir, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open daemon.log: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), logFile, nil
}

// quietNoisyLoggers would raise the level of any third-party component
// known to log verbosely at Info. The ONNX runtime and tokenizer
// libraries used here don't expose a Go logger to tune, so this is
// currently a no-op kept as the hook for when one of them does.
func quietNoisyLoggers() {}
