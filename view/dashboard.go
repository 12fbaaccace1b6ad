// Package view turns CDP snapshots into the dashboard shown for one CDP and
// routes the dashboard's actions to the sidebar.
package view

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"cdpview/cdp"
	"cdpview/history"
	"cdpview/units"
)

// Row titles.
const (
	TitleLiquidationPrice       = "Liquidation price"
	TitleCurrentPrice           = "Current price information"
	TitleLiquidationPenalty     = "Liquidation penalty"
	TitleCollateralizationRatio = "Collateralization ratio"
	TitleMinimumRatio           = "Minimum ratio"
	TitleStabilityFee           = "Stability fee"
	TitleRequiredForSafety      = "Required for safety"
	TitleAbleToWithdraw         = "Able to withdraw"
	TitleOutstandingDebt        = "Outstanding debt"
	TitleWalletBalance          = "DAI wallet balance"
	TitleAbleToGenerate         = "Able to generate"
	TitleHistory                = "Transaction history"
)

// Action is a button attached to a row.
type Action struct {
	Kind    ActionKind `json:"kind"`
	Enabled bool       `json:"enabled"`
}

// Row is one line of a card.
type Row struct {
	Title      string  `json:"title"`
	Value      string  `json:"value"`
	Conversion string  `json:"conversion,omitempty"`
	Action     *Action `json:"action,omitempty"`
}

// Card is a headline amount with supporting rows.
type Card struct {
	Title        string `json:"title"`
	Amount       string `json:"amount"`
	Denomination string `json:"denomination"`
	Extra        string `json:"extra,omitempty"`
	Rows         []Row  `json:"rows"`
}

// HistoryRow is one line of the history table.
type HistoryRow struct {
	CollateralType string `json:"collateral_type"`
	Activity       string `json:"activity"`
	Time           string `json:"time"`
	Sender         string `json:"sender"`
	TxHash         string `json:"tx_hash"`
}

// Dashboard is the presentation model of one CDP.
type Dashboard struct {
	CDPID   uint64       `json:"cdp_id"`
	Gem     string       `json:"gem"`
	Account string       `json:"account,omitempty"`
	Cards   []Card       `json:"cards"`
	History []HistoryRow `json:"history,omitempty"`
}

// Build formats snap. balance is nil while the wallet balance is unknown;
// the wallet row is only shown once it is known. Actions are disabled when
// account is the zero address.
func Build(snap *cdp.Snapshot, balance *decimal.Decimal, account common.Address) *Dashboard {
	if snap == nil {
		return nil
	}
	connected := account != (common.Address{})
	action := func(kind ActionKind) *Action {
		return &Action{Kind: kind, Enabled: connected}
	}

	gem := snap.IlkData.Gem
	price := snap.CollateralPrice
	ilk := snap.IlkData

	d := &Dashboard{CDPID: snap.ID, Gem: gem}
	if connected {
		d.Account = account.Hex()
	}

	d.Cards = append(d.Cards, Card{
		Title:        TitleLiquidationPrice,
		Amount:       fixed2(snap.LiquidationPrice),
		Denomination: "USD",
		Extra:        fmt.Sprintf("(%s/USD)", gem),
		Rows: []Row{
			{Title: fmt.Sprintf("%s (%s/USD)", TitleCurrentPrice, gem), Value: round2(price)},
			{Title: TitleLiquidationPenalty, Value: ilk.LiquidationPenalty.String() + "%"},
		},
	})

	d.Cards = append(d.Cards, Card{
		Title:        TitleCollateralizationRatio,
		Amount:       ratioPercent(snap.CollateralizationRatio),
		Denomination: "%",
		Rows: []Row{
			{Title: TitleMinimumRatio, Value: ilk.LiquidationRatio.String() + ".00%"},
			{Title: TitleStabilityFee, Value: units.Percent(ilk.Rate).String() + "%"},
		},
	})

	d.Cards = append(d.Cards, Card{
		Title:        gem + " locked",
		Amount:       fixed2(snap.Collateral),
		Denomination: snap.CollateralSymbol,
		Extra:        round2(snap.Collateral.Mul(price)) + " USD",
		Rows: []Row{
			{
				Title:      TitleRequiredForSafety,
				Value:      round2(snap.MinCollateral) + " " + gem,
				Conversion: fixed2(snap.MinCollateral.Mul(price)) + " USD",
				Action:     action(Deposit),
			},
			{
				Title:      TitleAbleToWithdraw,
				Value:      round2(snap.FreeCollateral) + " " + gem,
				Conversion: round2(snap.FreeCollateral.Mul(price)) + " USD",
				Action:     action(Withdraw),
			},
		},
	})

	debt := Card{
		Title:        "DAI position",
		Amount:       fixed2(snap.Debt),
		Denomination: snap.DebtSymbol,
		Extra:        TitleOutstandingDebt,
	}
	if balance != nil {
		debt.Rows = append(debt.Rows, Row{
			Title:      TitleWalletBalance,
			Value:      balance.String() + " DAI",
			Conversion: balance.String() + " USD",
			Action:     action(Payback),
		})
	}
	available := fixed2(snap.DaiAvailable)
	debt.Rows = append(debt.Rows, Row{
		Title:      TitleAbleToGenerate,
		Value:      available + " DAI",
		Conversion: available + " USD",
		Action:     action(Generate),
	})
	d.Cards = append(d.Cards, debt)
	return d
}

// WithHistory attaches history entries, newest first.
func (d *Dashboard) WithHistory(entries []history.Entry) *Dashboard {
	if d == nil {
		return nil
	}
	d.History = d.History[:0]
	for _, e := range entries {
		d.History = append(d.History, HistoryRow{
			CollateralType: e.CollateralType,
			Activity:       e.Activity,
			Time:           e.CreatedAt.Format("Jan 02, 2006"),
			Sender:         e.Sender,
			TxHash:         e.TxHash,
		})
	}
	return d
}

// Action returns the action of the first row offering kind.
func (d *Dashboard) Action(kind ActionKind) (Action, bool) {
	if d == nil {
		return Action{}, false
	}
	for _, card := range d.Cards {
		for _, row := range card.Rows {
			if row.Action != nil && row.Action.Kind == kind {
				return *row.Action, true
			}
		}
	}
	return Action{}, false
}

// round2 drops trailing zeros after rounding; fixed2 keeps two places.
func round2(v decimal.Decimal) string { return v.Round(2).String() }

func fixed2(v decimal.Decimal) string { return v.Round(2).StringFixed(2) }

func ratioPercent(r cdp.Ratio) string {
	if r.Infinite {
		return "Infinity"
	}
	return units.Percent(r.Value).StringFixed(2)
}
