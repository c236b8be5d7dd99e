package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Trade statuses. A trade is closed exactly once; the exit fields are set
// atomically with the closed status.
const (
	TradeOpen   = "open"
	TradeClosed = "closed"
)

// Trade represents a single copied position in the ledger.
type Trade struct {
	gorm.Model
	TradeID      string `gorm:"uniqueIndex;not null" json:"trade_id"`
	BotID        string `gorm:"index;not null" json:"bot_id"`
	IsPaperTrade bool   `json:"is_paper_trade"`

	MarketID string `json:"market_id"`
	Outcome  string `json:"outcome"`
	Title    string `json:"title"`

	Amount float64 `json:"amount"` // currency committed at open
	Price  float64 `json:"price"`  // entry probability, (0, 1]

	Status   string    `gorm:"default:open" json:"status"`
	OpenedAt time.Time `json:"opened_at"`

	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	CloseValue *float64   `json:"close_value,omitempty"`
	ProfitLoss *float64   `json:"profit_loss,omitempty"`

	// Linkage to the upstream event that caused this trade
	SourceTradeID string `json:"source_trade_id"`
	TargetTradeID string `json:"target_trade_id"`
}

// NewTrade builds an open Trade, validating price and amount invariants.
func NewTrade(tradeID, botID string, isPaper bool, marketID, outcome string, amount, price float64) (*Trade, error) {
	if price <= 0 || price > 1 {
		return nil, fmt.Errorf("trade price must be in (0, 1], got %v", price)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("trade amount must be positive, got %v", amount)
	}

	return &Trade{
		TradeID:      tradeID,
		BotID:        botID,
		IsPaperTrade: isPaper,
		MarketID:     marketID,
		Outcome:      outcome,
		Amount:       amount,
		Price:        price,
		Status:       TradeOpen,
		OpenedAt:     time.Now().UTC(),
	}, nil
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

// Shares is the number of outcome shares the committed amount bought.
func (t *Trade) Shares() float64 {
	return t.Amount / t.Price
}
