package view

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"cdpview/cdp"
	"cdpview/observability"
	"cdpview/wallet"
)

// Wallet is the account-bound token the screen shows a balance for.
type Wallet interface {
	Account() (common.Address, bool)
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Screen is one visit of the CDP page: the selected CDP's session and the
// wallet balance, fetched independently.
type Screen struct {
	ctx     context.Context
	session *cdp.Session
	wallet  Wallet
	logger  *slog.Logger
	metrics *observability.SnapshotMetrics

	mu      sync.Mutex
	balance *decimal.Decimal
	wg      sync.WaitGroup
}

// NewScreen builds a screen over session. wallet may be nil.
func NewScreen(ctx context.Context, session *cdp.Session, w Wallet, logger *slog.Logger) *Screen {
	if logger == nil {
		logger = slog.Default()
	}
	return &Screen{
		ctx:     ctx,
		session: session,
		wallet:  w,
		logger:  logger.With("component", "cdp-screen"),
		metrics: observability.Snapshots(),
	}
}

// Open selects id and refreshes the wallet balance. Neither fetch is
// awaited.
func (s *Screen) Open(id uint64) {
	s.session.Select(id)
	if s.wallet == nil {
		return
	}
	s.wg.Add(1)
	go s.fetchBalance()
}

func (s *Screen) fetchBalance() {
	defer s.wg.Done()
	balance, err := s.wallet.Balance(s.ctx)
	if err != nil {
		s.metrics.RecordBalanceFailure()
		if errors.Is(err, wallet.ErrNoAccount) {
			s.logger.Info("unable to fetch dai balance, no account is connected")
		} else {
			s.logger.Warn("unable to fetch dai balance", "error", err)
		}
		return
	}
	s.mu.Lock()
	s.balance = &balance
	s.mu.Unlock()
}

// Balance returns the last fetched wallet balance, nil when unknown.
func (s *Screen) Balance() *decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance == nil {
		return nil
	}
	b := *s.balance
	return &b
}

// Account returns the connected account, zero when none.
func (s *Screen) Account() common.Address {
	if s.wallet == nil {
		return common.Address{}
	}
	account, _ := s.wallet.Account()
	return account
}

// Snapshot returns the session's current snapshot.
func (s *Screen) Snapshot() (*cdp.Snapshot, bool) {
	return s.session.Current()
}

// Selected returns the selected CDP.
func (s *Screen) Selected() (uint64, bool) {
	return s.session.Selected()
}

// Err returns the failure of the latest snapshot fetch.
func (s *Screen) Err() error {
	return s.session.Err()
}

// View returns the dashboard, or loading while no snapshot is available.
func (s *Screen) View() (d *Dashboard, loading bool) {
	snap, loading := s.session.Current()
	if loading {
		return nil, true
	}
	return Build(snap, s.Balance(), s.Account()), false
}

// Request builds a sidebar request for the current snapshot.
func (s *Screen) Request(kind ActionKind) Request {
	snap, _ := s.session.Current()
	id, _ := s.session.Selected()
	return Request{Kind: kind, CDPID: id, Snapshot: snap, Account: s.Account(), Balance: s.Balance()}
}

// Wait blocks until every started fetch has returned.
func (s *Screen) Wait() {
	s.wg.Wait()
	s.session.Wait()
}
