package feeds

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

const cachePrefix = "feeds/"

// KV is the key-value store a Cache persists to. *storage.MemDB and
// *storage.LevelDB satisfy it.
type KV interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Keys(prefix []byte) ([][]byte, error)
}

// Cache persists the last applied feed data so a restarted process can serve
// ilk data before its first refresh.
type Cache struct {
	db KV
}

// NewCache wraps db.
func NewCache(db KV) *Cache {
	return &Cache{db: db}
}

// Save writes every ilk the store knows.
func (c *Cache) Save(store *Store) error {
	for _, name := range store.Ilks() {
		data, ok := store.IlkData(name)
		if !ok {
			continue
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s feed data: %w", name, err)
		}
		if err := c.db.Put([]byte(cachePrefix+name), payload); err != nil {
			return fmt.Errorf("persist %s feed data: %w", name, err)
		}
	}
	return nil
}

// Restore loads every cached ilk into store and returns how many were
// restored.
func (c *Cache) Restore(store *Store) (int, error) {
	keys, err := c.db.Keys([]byte(cachePrefix))
	if err != nil {
		return 0, fmt.Errorf("list cached feeds: %w", err)
	}
	restored := 0
	for _, key := range keys {
		payload, err := c.db.Get(key)
		if err != nil {
			return restored, fmt.Errorf("read %s: %w", key, err)
		}
		var data IlkData
		if err := json.Unmarshal(payload, &data); err != nil {
			return restored, fmt.Errorf("decode %s: %w", key, err)
		}
		if data.Key == "" {
			data.Key = strings.TrimPrefix(string(key), cachePrefix)
		}
		store.restore(data)
		restored++
	}
	return restored, nil
}

// restore files data under its ilk unless fresher values were applied since.
func (s *Store) restore(data IlkData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if updated, ok := s.updated[data.Key]; ok && !updated.Before(data.UpdatedAt) {
		return
	}
	fields := map[string]any{
		FieldFeedValueUSD:          data.FeedValueUSD,
		FieldFeedSetUSD:            data.FeedSetUSD,
		FieldRate:                  data.Rate,
		FieldPriceWithSafetyMargin: data.PriceWithSafetyMargin,
		FieldDebtCeiling:           data.DebtCeiling,
		FieldLiquidationRatio:      data.LiquidationRatio,
		FieldLiquidatorAddress:     data.LiquidatorAddress,
		FieldLiquidationPenalty:    data.LiquidationPenalty,
		FieldMaxAuctionLotSize:     data.MaxAuctionLotSize,
		FieldAdapterBalance:        data.AdapterBalance,
		"pip":                      data.Pip,
	}
	if !data.LastDrip.IsZero() {
		fields[FieldLastDrip] = big.NewInt(data.LastDrip.Unix())
	}
	if _, known := s.gems[data.Key]; !known && data.Gem != "" {
		s.gems[data.Key] = data.Gem
	}
	s.values[data.Key] = fields
	s.updated[data.Key] = data.UpdatedAt
}
