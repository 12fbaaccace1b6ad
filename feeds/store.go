package feeds

import (
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Ilk is a configured collateral type.
type Ilk struct {
	Key      string `yaml:"key" toml:"key" json:"key"`
	Gem      string `yaml:"gem" toml:"gem" json:"gem"`
	Decimals int32  `yaml:"decimals" toml:"decimals" json:"decimals"`
}

// IlkData is the typed view of everything the store knows about an ilk.
type IlkData struct {
	Key                   string          `json:"key"`
	Gem                   string          `json:"gem"`
	FeedValueUSD          decimal.Decimal `json:"feed_value_usd"`
	FeedSetUSD            string          `json:"feed_set_usd"`
	Rate                  decimal.Decimal `json:"rate"`
	LastDrip              time.Time       `json:"last_drip"`
	PriceWithSafetyMargin decimal.Decimal `json:"price_with_safety_margin"`
	DebtCeiling           decimal.Decimal `json:"debt_ceiling"`
	LiquidationRatio      decimal.Decimal `json:"liquidation_ratio"`
	LiquidatorAddress     common.Address  `json:"liquidator_address"`
	LiquidationPenalty    decimal.Decimal `json:"liquidation_penalty"`
	MaxAuctionLotSize     decimal.Decimal `json:"max_auction_lot_size"`
	AdapterBalance        decimal.Decimal `json:"adapter_balance"`
	Pip                   common.Address  `json:"pip"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Store holds the latest feed values keyed by ilk. It is safe for concurrent
// use.
type Store struct {
	mu      sync.RWMutex
	gems    map[string]string
	values  map[string]map[string]any
	updated map[string]time.Time
	now     func() time.Time
}

// NewStore returns a store that knows the gem symbol of each ilk.
func NewStore(ilks ...Ilk) *Store {
	s := &Store{
		gems:    make(map[string]string),
		values:  make(map[string]map[string]any),
		updated: make(map[string]time.Time),
		now:     time.Now,
	}
	for _, ilk := range ilks {
		s.gems[ilk.Key] = GemOf(ilk)
	}
	return s
}

// GemOf returns the configured gem, defaulting to the ilk prefix ("ETH" for
// "ETH-A").
func GemOf(ilk Ilk) string {
	if gem := strings.TrimSpace(ilk.Gem); gem != "" {
		return gem
	}
	gem, _, _ := strings.Cut(ilk.Key, "-")
	return gem
}

// Apply merges a batch of "<ilk>.<field>" values. Keys of the form
// "pip<ilk>" are filed under the ilk's pip.
func (s *Store) Apply(values map[string]any) {
	if s == nil || len(values) == 0 {
		return
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		ilk, field, ok := strings.Cut(k, ".")
		if !ok {
			name, isPip := strings.CutPrefix(k, "pip")
			if !isPip || name == "" {
				continue
			}
			ilk, field = name, "pip"
		}
		fields, exists := s.values[ilk]
		if !exists {
			fields = make(map[string]any)
			s.values[ilk] = fields
		}
		fields[field] = v
		s.updated[ilk] = now
	}
}

// IlkData returns the typed data for name; ok is false when nothing has been
// applied for it yet.
func (s *Store) IlkData(name string) (IlkData, bool) {
	if s == nil {
		return IlkData{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.values[name]
	gem := s.gems[name]
	if gem == "" {
		gem = GemOf(Ilk{Key: name})
	}
	data := IlkData{Key: name, Gem: gem}
	if !ok {
		return data, false
	}
	data.FeedValueUSD = decimalField(fields, FieldFeedValueUSD)
	data.FeedSetUSD, _ = fields[FieldFeedSetUSD].(string)
	data.Rate = decimalField(fields, FieldRate)
	if rho, ok := fields[FieldLastDrip].(*big.Int); ok && rho.IsInt64() {
		data.LastDrip = time.Unix(rho.Int64(), 0).UTC()
	}
	data.PriceWithSafetyMargin = decimalField(fields, FieldPriceWithSafetyMargin)
	data.DebtCeiling = decimalField(fields, FieldDebtCeiling)
	data.LiquidationRatio = decimalField(fields, FieldLiquidationRatio)
	data.LiquidatorAddress, _ = fields[FieldLiquidatorAddress].(common.Address)
	data.LiquidationPenalty = decimalField(fields, FieldLiquidationPenalty)
	data.MaxAuctionLotSize = decimalField(fields, FieldMaxAuctionLotSize)
	data.AdapterBalance = decimalField(fields, FieldAdapterBalance)
	data.Pip, _ = fields["pip"].(common.Address)
	data.UpdatedAt = s.updated[name]
	return data, true
}

// Ilks lists the ilks with applied data, sorted.
func (s *Store) Ilks() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for name := range s.values {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func decimalField(fields map[string]any, name string) decimal.Decimal {
	d, _ := fields[name].(decimal.Decimal)
	return d
}
