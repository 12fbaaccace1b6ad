// Package wiring assembles the read stack shared by cdpviewd and cdpctl.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"cdpview/cdp"
	"cdpview/config"
	"cdpview/feeds"
	"cdpview/history"
	"cdpview/multicall"
	"cdpview/observability/logging"
	"cdpview/storage"
	"cdpview/view"
	"cdpview/wallet"
)

// Stack holds the components built from one configuration.
type Stack struct {
	Batcher *multicall.Batcher
	Feeds   *feeds.Store
	Poller  *feeds.Poller
	Manager *cdp.ChainManager
	Loader  *cdp.Loader
	Token   *wallet.ERC20
	History *history.Store
	Cache   storage.Database
}

// Dial connects to the configured node.
func Dial(ctx context.Context, cfg config.Config, logger *slog.Logger) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	logger.Info("connected to node", logging.MaskURL("rpc_url", cfg.RPCURL))
	return client, nil
}

// Build assembles the stack over caller.
func Build(cfg config.Config, caller ethereum.ContractCaller, logger *slog.Logger) *Stack {
	opts := []multicall.Option{
		multicall.WithMaxCalls(cfg.MaxCalls),
		multicall.WithParallelism(cfg.Parallelism),
	}
	if cfg.Multicall != "" {
		opts = append(opts, multicall.WithMulticall(common.HexToAddress(cfg.Multicall)))
	}
	batcher := multicall.NewBatcher(caller, opts...)

	store := feeds.NewStore(cfg.Ilks...)
	poller := feeds.NewPoller(batcher, store, cfg.FeedAddresses(), cfg.Ilks, cfg.FeedInterval, logger)
	manager := cdp.NewChainManager(batcher, cdp.Contracts{
		CDPManager: common.HexToAddress(cfg.Contracts.CDPManager),
		Vat:        common.HexToAddress(cfg.Contracts.Vat),
		Spotter:    common.HexToAddress(cfg.Contracts.Spotter),
	})

	s := &Stack{
		Batcher: batcher,
		Feeds:   store,
		Poller:  poller,
		Manager: manager,
		Loader:  cdp.NewLoader(manager, store),
	}
	if cfg.DaiToken != "" {
		s.Token = wallet.NewERC20(batcher, cdp.DebtSymbol, common.HexToAddress(cfg.DaiToken), cfg.AccountAddress())
	}
	return s
}

// OpenHistory attaches the history store at dsn.
func (s *Stack) OpenHistory(dsn string, logger *slog.Logger) error {
	store, err := history.Open(dsn)
	if err != nil {
		return err
	}
	s.History = store
	logger.Info("history store opened", logging.MaskField("history_dsn", dsn))
	return nil
}

// OpenFeedCache opens the feed cache at dir, restores it into the feed
// store and makes the poller persist every refresh. An empty dir keeps the
// cache in memory.
func (s *Stack) OpenFeedCache(dir string, logger *slog.Logger) error {
	db, err := storage.Open(dir)
	if err != nil {
		return err
	}
	cache := feeds.NewCache(db)
	restored, err := cache.Restore(s.Feeds)
	if err != nil {
		_ = db.Close()
		return err
	}
	if restored > 0 {
		logger.Info("restored cached feed data", "ilks", restored)
	}
	s.Cache = db
	s.Poller.WithCache(cache)
	return nil
}

// Wallet returns the token as a view.Wallet, nil when no token is configured.
func (s *Stack) Wallet() view.Wallet {
	if s.Token == nil {
		return nil
	}
	return s.Token
}

// Recorder returns the history store as a view.Recorder, nil when history is not open.
func (s *Stack) Recorder() view.Recorder {
	if s.History == nil {
		return nil
	}
	return s.History
}

// Close releases the history store and the feed cache.
func (s *Stack) Close() error {
	var errs []error
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	return errors.Join(errs...)
}
