// Package cdp loads the read model of a single collateralized debt position.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cdpview/feeds"
)

var (
	// ErrNotFound is returned for identifiers without an urn.
	ErrNotFound = errors.New("cdp: not found")
	// ErrInvalidID is returned when a route identifier is not a base-10 integer.
	ErrInvalidID = errors.New("cdp: invalid identifier")
)

// DebtSymbol is the denomination of CDP debt.
const DebtSymbol = "DAI"

// Manager resolves CDPs by identifier.
type Manager interface {
	GetCDP(ctx context.Context, id uint64) (CDP, error)
}

// CDP exposes the per-position reads. Every accessor may hit the chain.
type CDP interface {
	ID() uint64
	Ilk() string
	DebtValue(ctx context.Context) (decimal.Decimal, error)
	CollateralAmount(ctx context.Context) (decimal.Decimal, error)
	Price(ctx context.Context) (decimal.Decimal, error)
	CollateralizationRatio(ctx context.Context) (Ratio, error)
	LiquidationPrice(ctx context.Context) (decimal.Decimal, error)
	DaiAvailable(ctx context.Context) (decimal.Decimal, error)
	MinCollateral(ctx context.Context) (decimal.Decimal, error)
	CollateralAvailable(ctx context.Context) (decimal.Decimal, error)
}

// FeedSource resolves ilk data, normally a *feeds.Store.
type FeedSource interface {
	IlkData(name string) (feeds.IlkData, bool)
}

// Ratio is a collateralization ratio. A position without debt is infinitely
// collateralized.
type Ratio struct {
	Value    decimal.Decimal
	Infinite bool
}

// InfiniteRatio is the ratio of a debt-free position.
var InfiniteRatio = Ratio{Infinite: true}

// NewRatio wraps a finite ratio.
func NewRatio(v decimal.Decimal) Ratio { return Ratio{Value: v} }

// MarshalJSON renders the ratio as a decimal string or "Infinity".
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.Infinite {
		return json.Marshal("Infinity")
	}
	return json.Marshal(r.Value.String())
}

// UnmarshalJSON accepts the forms MarshalJSON produces.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	if raw == "Infinity" {
		*r = InfiniteRatio
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	*r = NewRatio(v)
	return nil
}

// Snapshot is an immutable read of one CDP. A new fetch replaces it
// wholesale.
type Snapshot struct {
	ID                     uint64          `json:"id"`
	Ilk                    string          `json:"ilk"`
	IlkData                feeds.IlkData   `json:"ilk_data"`
	Debt                   decimal.Decimal `json:"debt"`
	DebtSymbol             string          `json:"debt_symbol"`
	Collateral             decimal.Decimal `json:"collateral"`
	CollateralSymbol       string          `json:"collateral_symbol"`
	CollateralPrice        decimal.Decimal `json:"collateral_price"`
	CollateralizationRatio Ratio           `json:"collateralization_ratio"`
	LiquidationPrice       decimal.Decimal `json:"liquidation_price"`
	DaiAvailable           decimal.Decimal `json:"dai_available"`
	MinCollateral          decimal.Decimal `json:"min_collateral"`
	FreeCollateral         decimal.Decimal `json:"free_collateral"`
	LoadedAt               time.Time       `json:"loaded_at"`
}

// ParseID parses a route identifier.
func ParseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}
