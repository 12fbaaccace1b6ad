package cdp

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"cdpview/multicall"
	"cdpview/units"
)

// Contracts locates the MCD core contracts read by ChainManager.
type Contracts struct {
	CDPManager common.Address
	Vat        common.Address
	Spotter    common.Address
}

// ChainManager resolves CDPs from the DssCdpManager and reads their state
// from the Vat and Spotter.
type ChainManager struct {
	runner    multicall.Runner
	contracts Contracts
}

// NewChainManager constructs a manager reading through runner.
func NewChainManager(runner multicall.Runner, contracts Contracts) *ChainManager {
	return &ChainManager{runner: runner, contracts: contracts}
}

// GetCDP resolves the ilk and urn of id.
func (m *ChainManager) GetCDP(ctx context.Context, id uint64) (CDP, error) {
	if m == nil || m.runner == nil {
		return nil, fmt.Errorf("cdp: chain manager not initialised")
	}
	cdpID := new(big.Int).SetUint64(id)
	res, err := m.runner.Run(ctx, []multicall.Call{
		{
			Target:    m.contracts.CDPManager,
			Signature: "ilks(uint256)(bytes32)",
			Args:      []any{cdpID},
			Returns:   []multicall.Return{{Key: "ilk"}},
		},
		{
			Target:    m.contracts.CDPManager,
			Signature: "urns(uint256)(address)",
			Args:      []any{cdpID},
			Returns:   []multicall.Return{{Key: "urn"}},
		},
	})
	if err != nil {
		return nil, err
	}
	urn, _ := res.Values["urn"].(common.Address)
	ilk, _ := res.Values["ilk"].([32]byte)
	if urn == (common.Address{}) || ilk == ([32]byte{}) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return &chainCDP{id: id, ilk: ilk, urn: urn, manager: m}, nil
}

// chainCDP reads its urn state once; every accessor derives from that read.
type chainCDP struct {
	id      uint64
	ilk     [32]byte
	urn     common.Address
	manager *ChainManager

	once   sync.Once
	values derived
	err    error
}

// urnState holds the raw words a CDP's derived values are computed from.
type urnState struct {
	ink, art, rate, spot, mat *uint256.Int
}

func (c *chainCDP) ID() uint64  { return c.id }
func (c *chainCDP) Ilk() string { return units.FromBytes32(c.ilk) }

func (c *chainCDP) state(ctx context.Context) (urnState, error) {
	m := c.manager
	res, err := m.runner.Run(ctx, []multicall.Call{
		{
			Target:    m.contracts.Vat,
			Signature: "urns(bytes32,address)(uint256,uint256)",
			Args:      []any{c.ilk, c.urn},
			Returns:   []multicall.Return{{Key: "ink"}, {Key: "art"}},
		},
		{
			Target:    m.contracts.Vat,
			Signature: "ilks(bytes32)(uint256,uint256,uint256,uint256,uint256)",
			Args:      []any{c.ilk},
			Returns:   []multicall.Return{{Key: "Art"}, {Key: "rate"}, {Key: "spot"}},
		},
		{
			Target:    m.contracts.Spotter,
			Signature: "ilks(bytes32)(address,uint256)",
			Args:      []any{c.ilk},
			Returns:   []multicall.Return{{Key: "pip"}, {Key: "mat"}},
		},
	})
	if err != nil {
		return urnState{}, err
	}
	var st urnState
	for key, dst := range map[string]**uint256.Int{
		"ink": &st.ink, "art": &st.art, "rate": &st.rate, "spot": &st.spot, "mat": &st.mat,
	} {
		raw, err := multicall.AsBig(res.Values[key])
		if err != nil {
			return urnState{}, fmt.Errorf("%s: %w", key, err)
		}
		word, overflow := uint256.FromBig(raw)
		if overflow {
			return urnState{}, fmt.Errorf("%s: exceeds 256 bits", key)
		}
		*dst = word
	}
	return st, nil
}

func mulWords(a, b *uint256.Int) (*big.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("cdp: word product overflows 256 bits")
	}
	return product.ToBig(), nil
}

// debt is art × rate, a rad with 45 decimals.
func (s urnState) debt() (decimal.Decimal, error) {
	rad, err := mulWords(s.art, s.rate)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(rad, -45), nil
}

func (s urnState) collateral() decimal.Decimal {
	return units.Scale(s.ink.ToBig(), 18)
}

// price undoes the safety margin baked into spot: spot × mat / RAY².
func (s urnState) price() (decimal.Decimal, error) {
	product, err := mulWords(s.spot, s.mat)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(product, -54), nil
}

func (s urnState) liquidationRatio() decimal.Decimal {
	return units.Scale(s.mat.ToBig(), 27)
}

type derived struct {
	debt, collateral, price, liquidationRatio decimal.Decimal
}

func (c *chainCDP) derived(ctx context.Context) (derived, error) {
	c.once.Do(func() {
		c.values, c.err = c.read(ctx)
	})
	return c.values, c.err
}

func (c *chainCDP) read(ctx context.Context) (derived, error) {
	st, err := c.state(ctx)
	if err != nil {
		return derived{}, err
	}
	debt, err := st.debt()
	if err != nil {
		return derived{}, err
	}
	price, err := st.price()
	if err != nil {
		return derived{}, err
	}
	return derived{
		debt:             debt,
		collateral:       st.collateral(),
		price:            price,
		liquidationRatio: st.liquidationRatio(),
	}, nil
}

func (c *chainCDP) DebtValue(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	return d.debt, err
}

func (c *chainCDP) CollateralAmount(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	return d.collateral, err
}

func (c *chainCDP) Price(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	return d.price, err
}

func (c *chainCDP) CollateralizationRatio(ctx context.Context) (Ratio, error) {
	d, err := c.derived(ctx)
	if err != nil {
		return Ratio{}, err
	}
	return CollateralizationRatio(d.collateral, d.price, d.debt), nil
}

func (c *chainCDP) LiquidationPrice(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return LiquidationPrice(d.debt, d.collateral, d.liquidationRatio), nil
}

func (c *chainCDP) DaiAvailable(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return DaiAvailable(d.collateral, d.price, d.debt, d.liquidationRatio), nil
}

func (c *chainCDP) MinCollateral(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return MinCollateral(d.debt, d.price, d.liquidationRatio), nil
}

func (c *chainCDP) CollateralAvailable(ctx context.Context) (decimal.Decimal, error) {
	d, err := c.derived(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return FreeCollateral(d.collateral, MinCollateral(d.debt, d.price, d.liquidationRatio)), nil
}
