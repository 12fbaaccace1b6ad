package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cdpview/cdp"
	"cdpview/cmd/internal/wiring"
	"cdpview/config"
	"cdpview/feeds"
	"cdpview/observability/logging"
	"cdpview/view"
)

type options struct {
	configPath  string
	id          string
	json        bool
	withHistory bool
	timeout     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "cdpctl",
		Short:         "Inspect a Maker CDP",
		Long:          "Loads one CDP snapshot and prints its dashboard.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to cdpview configuration (.yaml or .toml)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for chain reads")
	root.Flags().StringVar(&opts.id, "id", "", "CDP identifier")
	root.Flags().BoolVar(&opts.json, "json", false, "print JSON instead of text")
	root.Flags().BoolVar(&opts.withHistory, "history", false, "include recorded history")
	_ = root.MarkFlagRequired("id")

	root.AddCommand(newFeedsCmd(opts))
	return root
}

func newFeedsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds [ilk...]",
		Short: "Print the feed data of the configured ilks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeeds(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
}

func setup(ctx context.Context, opts *options) (config.Config, *wiring.Stack, func(), error) {
	logger := logging.SetupWithOptions("cdpctl", os.Getenv(config.EnvEnv), logging.Options{
		Writer: os.Stderr,
		Level:  slog.LevelWarn,
	})
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	client, err := wiring.Dial(ctx, cfg, logger)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	stack := wiring.Build(cfg, client, logger)
	return cfg, stack, func() {
		_ = stack.Close()
		client.Close()
	}, nil
}

func runShow(parent context.Context, out io.Writer, opts *options) error {
	id, err := cdp.ParseID(opts.id)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(contextOrBackground(parent), opts.timeout)
	defer cancel()

	cfg, stack, closeFn, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := stack.Poller.Refresh(ctx); err != nil {
		slog.Warn("feed refresh failed; using defaults", "error", err)
	}
	snap, err := stack.Loader.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load cdp %d: %w", id, err)
	}

	var balance *decimal.Decimal
	if w := stack.Wallet(); w != nil {
		if b, err := w.Balance(ctx); err == nil {
			balance = &b
		} else {
			slog.Warn("unable to fetch dai balance", "error", err)
		}
	}
	dashboard := view.Build(snap, balance, cfg.AccountAddress())
	if opts.withHistory {
		if err := stack.OpenHistory(cfg.HistoryDSN, slog.Default()); err != nil {
			return err
		}
		entries, err := stack.History.List(ctx, id, 0)
		if err != nil {
			return err
		}
		dashboard.WithHistory(entries)
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Dashboard *view.Dashboard `json:"dashboard"`
			Snapshot  *cdp.Snapshot   `json:"snapshot"`
		}{dashboard, snap})
	}
	_, err = io.WriteString(out, view.Text(dashboard))
	return err
}

func runFeeds(parent context.Context, out io.Writer, opts *options, ilks []string) error {
	ctx, cancel := context.WithTimeout(contextOrBackground(parent), opts.timeout)
	defer cancel()

	_, stack, closeFn, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := stack.Poller.Refresh(ctx); err != nil {
		return err
	}
	if len(ilks) == 0 {
		ilks = stack.Feeds.Ilks()
	}
	result := make(map[string]feeds.IlkData, len(ilks))
	var missing []string
	for _, ilk := range ilks {
		key := strings.ToUpper(strings.TrimSpace(ilk))
		data, ok := stack.Feeds.IlkData(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		result[key] = data
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if len(missing) > 0 {
		return errors.New("no feed data for " + strings.Join(missing, ", "))
	}
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
