package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"cdpview/cdp"
	"cdpview/history"
	"cdpview/wallet"
)

// ActionKind names a sidebar flow.
type ActionKind string

const (
	Deposit  ActionKind = "deposit"
	Withdraw ActionKind = "withdraw"
	Generate ActionKind = "generate"
	Payback  ActionKind = "payback"
)

var (
	// ErrUnknownAction is returned for kinds outside the four sidebar flows.
	ErrUnknownAction = errors.New("view: unknown action")
	// ErrNoBalance is returned for payback while the wallet balance is unknown.
	ErrNoBalance = errors.New("view: wallet balance unknown")
	// ErrInvalidAmount is returned for amounts that are not positive.
	ErrInvalidAmount = errors.New("view: amount must be positive")
	// ErrInsufficientBalance is returned when a payback exceeds the wallet
	// balance.
	ErrInsufficientBalance = errors.New("view: payback exceeds wallet balance")
)

// ParseActionKind validates a kind received from a client.
func ParseActionKind(raw string) (ActionKind, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case Deposit, Withdraw, Generate, Payback:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// activity is the history line recorded for a request. Without an amount
// it records that the flow was opened.
func (k ActionKind) activity(gem string, amount *decimal.Decimal) string {
	if amount != nil {
		switch k {
		case Deposit:
			return history.Label(history.VerbLocked, *amount, gem)
		case Withdraw:
			return history.Label(history.VerbWithdrew, *amount, gem)
		case Generate:
			return history.Label(history.VerbDrew, *amount, cdp.DebtSymbol)
		case Payback:
			return history.Label(history.VerbPaidBack, *amount, cdp.DebtSymbol)
		}
	}
	switch k {
	case Deposit:
		return "Opened deposit of " + gem
	case Withdraw:
		return "Opened withdrawal of " + gem
	case Generate:
		return "Opened DAI generation"
	case Payback:
		return "Opened DAI payback"
	}
	return string(k)
}

// Request is handed to the sidebar.
type Request struct {
	Kind     ActionKind
	CDPID    uint64
	Snapshot *cdp.Snapshot
	Account  common.Address
	Balance  *decimal.Decimal
	Amount   *decimal.Decimal
}

// Sidebar shows a transaction flow for a CDP.
type Sidebar interface {
	Show(ctx context.Context, req Request) error
}

// Recorder persists dispatched actions. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, entry history.Entry) (history.Entry, error)
}

// LogSidebar logs requests. It stands in when no sidebar is attached.
type LogSidebar struct {
	Logger *slog.Logger
}

// Show logs req.
func (s LogSidebar) Show(_ context.Context, req Request) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sidebar requested", "kind", string(req.Kind), "cdp", req.CDPID, "account", req.Account.Hex())
	return nil
}

// Dispatcher validates dashboard actions before forwarding them.
type Dispatcher struct {
	sidebar  Sidebar
	recorder Recorder
}

// NewDispatcher forwards to sidebar and records to recorder, which may be
// nil.
func NewDispatcher(sidebar Sidebar, recorder Recorder) *Dispatcher {
	if sidebar == nil {
		sidebar = LogSidebar{}
	}
	return &Dispatcher{sidebar: sidebar, recorder: recorder}
}

// Dispatch checks req, shows it and records it once the sidebar accepted
// it. The returned entry is the zero value when no recorder is configured.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (history.Entry, error) {
	kind, err := ParseActionKind(string(req.Kind))
	if err != nil {
		return history.Entry{}, err
	}
	req.Kind = kind
	if req.Account == (common.Address{}) {
		return history.Entry{}, wallet.ErrNoAccount
	}
	if kind == Payback && req.Balance == nil {
		return history.Entry{}, ErrNoBalance
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return history.Entry{}, ErrInvalidAmount
		}
		if kind == Payback && req.Amount.GreaterThan(*req.Balance) {
			return history.Entry{}, ErrInsufficientBalance
		}
	}
	if req.Snapshot != nil && req.CDPID == 0 {
		req.CDPID = req.Snapshot.ID
	}

	if err := d.sidebar.Show(ctx, req); err != nil {
		return history.Entry{}, fmt.Errorf("show %s sidebar: %w", kind, err)
	}
	if d.recorder == nil {
		return history.Entry{}, nil
	}
	gem := ""
	if req.Snapshot != nil {
		gem = req.Snapshot.IlkData.Gem
	}
	entry, err := d.recorder.Record(ctx, history.Entry{
		CDPID:          req.CDPID,
		CollateralType: gem,
		Activity:       kind.activity(gem, req.Amount),
		Sender:         req.Account.Hex(),
	})
	if err != nil {
		return history.Entry{}, err
	}
	return entry, nil
}
