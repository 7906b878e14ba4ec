// Command pokerledger tracks per-player chip positions across a multi-day
// poker event and computes who owes whom to settle it. Data lives in a
// local crash-safe store; changes are optionally mirrored to a GitHub
// repository when a token is configured.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/indranil/pokerledger/internal/config"
	"github.com/indranil/pokerledger/internal/remote"
	"github.com/indranil/pokerledger/internal/service"
	"github.com/indranil/pokerledger/internal/storage"
	"github.com/indranil/pokerledger/internal/storage/jsonfile"
	"github.com/indranil/pokerledger/internal/storage/sqlite"
	"github.com/indranil/pokerledger/pkg/logging"
)

var (
	flagDataDir string
	flagBackend string
	flagDBPath  string
)

func main() {
	logging.Setup()
	if err := newRootCmd().Execute(); err != nil {
		// Validation and not-found errors are expected user-facing
		// conditions; cobra has already printed them.
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pokerledger",
		Short:         "Track poker event chip counts and settle who owes whom",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory for the JSON file store (default $DATA_DIR or ./data)")
	root.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend: json or sqlite (default $STORE_BACKEND or json)")
	root.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (default $DB_PATH)")

	root.AddCommand(
		newEventsCmd(),
		newPlayersCmd(),
		newSettlementsCmd(),
		newClearCmd(),
		newHealthCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig resolves the runtime configuration, letting flags win over the
// environment.
func loadConfig() config.Config {
	cfg := config.Load()
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	return cfg
}

// openTracker builds the store, syncer, and service for one command run.
// The returned cleanup drains the sync queue and closes the store.
func openTracker() (*service.Tracker, func(), error) {
	cfg := loadConfig()

	var store storage.Store
	var err error
	switch cfg.Backend {
	case config.BackendJSON:
		store, err = jsonfile.New(cfg.DataDir)
	case config.BackendSQLite:
		store, err = sqlite.New(cfg.DBPath)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	tracker := service.New(store, remote.NewGitHub(cfg.GitHub))
	cleanup := func() {
		tracker.Close()
		if err := store.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}
	return tracker, cleanup, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newEventsCmd() *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Manage events",
	}

	events.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			list, err := tracker.ListEvents(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	})

	events.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a new event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			event, err := tracker.CreateEvent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(event)
		},
	})

	events.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an event and everything scoped to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			return tracker.DeleteEvent(cmd.Context(), args[0])
		},
	})

	return events
}

func newPlayersCmd() *cobra.Command {
	players := &cobra.Command{
		Use:   "players",
		Short: "Read and save player records",
	}

	players.AddCommand(&cobra.Command{
		Use:   "get EVENT",
		Short: "Show the player records for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			list, err := tracker.Players(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(list)
		},
	})

	players.AddCommand(&cobra.Command{
		Use:   "save EVENT [FILE]",
		Short: "Replace the player list for an event from a JSON file (or stdin)",
		Long: `Replace the player list for an event.

Input is a JSON array of player rows:

  [{"name": "Alice", "start": "20", "buyins": 1,
    "days": ["35", "", "42", "0"]}]

An empty day string means the player did not play that day; "0" means they
busted. P/L and days-played are recomputed on save.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := os.Stdin
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}
			data, err := io.ReadAll(input)
			if err != nil {
				return err
			}
			var inputs []service.PlayerInput
			if err := json.Unmarshal(data, &inputs); err != nil {
				return fmt.Errorf("invalid player input: %w", err)
			}

			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			saved, err := tracker.SavePlayers(cmd.Context(), args[0], inputs)
			if err != nil {
				return err
			}
			return printJSON(saved)
		},
	})

	return players
}

func newSettlementsCmd() *cobra.Command {
	settlements := &cobra.Command{
		Use:   "settlements",
		Short: "Compute settlements and track payments",
	}

	settlements.AddCommand(&cobra.Command{
		Use:   "get EVENT",
		Short: "Recompute who owes whom for an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			result, err := tracker.Settlements(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	})

	var unpaid bool
	markPaid := &cobra.Command{
		Use:   "mark-paid EVENT FROM TO",
		Short: "Mark a settlement transfer as paid (or unpaid with --unpaid)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			return tracker.MarkPaid(cmd.Context(), args[0], args[1], args[2], !unpaid)
		},
	}
	markPaid.Flags().BoolVar(&unpaid, "unpaid", false, "mark the transfer as unpaid instead")
	settlements.AddCommand(markPaid)

	return settlements
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear EVENT",
		Short: "Clear an event's players and settlement flags, keeping the event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()
			return tracker.Clear(cmd.Context(), args[0])
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report store and remote-sync health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			h := tracker.CheckHealth(ctx)
			if err := printJSON(h); err != nil {
				return err
			}
			if !h.StoreOK {
				return errors.New("store health check failed")
			}
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /metrics and /healthz for scraping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr == "" {
				addr = cfg.MetricsAddr
			}
			if addr == "" {
				addr = ":9190"
			}

			tracker, cleanup, err := openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
				defer cancel()
				h := tracker.CheckHealth(ctx)
				w.Header().Set("Content-Type", "application/json")
				if !h.StoreOK {
					w.WriteHeader(http.StatusServiceUnavailable)
				}
				_ = json.NewEncoder(w).Encode(h)
			})

			slog.Info("metrics listener starting", "address", addr)
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $METRICS_ADDR or :9190)")
	return cmd
}
