package folioapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one symbol's latest price data
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PortfolioSummary aggregates one portfolio's current standing
type PortfolioSummary struct {
	PortfolioID      string          `json:"portfolio_id"`
	TotalValue       decimal.Decimal `json:"total_value"`
	DayChange        decimal.Decimal `json:"day_change"`
	DayChangePercent decimal.Decimal `json:"day_change_percent"`
	TotalGain        decimal.Decimal `json:"total_gain"`
	TotalGainPercent decimal.Decimal `json:"total_gain_percent"`
	CashBalance      decimal.Decimal `json:"cash_balance"`
	PositionCount    int             `json:"position_count"`
	AsOf             time.Time       `json:"as_of"`
}

// Mover is one entry of the daily top-movers board
type Mover struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Direction     string          `json:"direction"` // "up" or "down"
}
