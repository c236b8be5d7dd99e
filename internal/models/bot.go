package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Bot lifecycle statuses. A bot in paper or production mode has a running
// polling task; an inactive bot has none.
const (
	StatusInactive   = "inactive"
	StatusPaper      = "paper"
	StatusProduction = "production"
)

// Bot represents a copy bot's configuration, wallet and aggregate performance.
type Bot struct {
	gorm.Model
	BotID             string `gorm:"uniqueIndex;not null" json:"bot_id"`
	Name              string `json:"name"`
	Status            string `gorm:"default:inactive" json:"status"`
	TargetUserURL     string `json:"target_user_url"`
	TargetUserAddress string `json:"target_user_address"`

	// Strategy parameters
	CopyRatio          float64 `json:"copy_ratio"`
	MinTradeValue      float64 `json:"min_trade_value"`
	MaxTradeValue      float64 `json:"max_trade_value"`
	StopLossPercentage float64 `json:"stop_loss_percentage"`
	MaxDailyLoss       float64 `json:"max_daily_loss"`

	// Paper wallet
	PaperWalletBalance float64 `json:"paper_wallet_balance"`
	PaperWalletInitial float64 `json:"paper_wallet_initial"`

	// Aggregate performance, recomputed from closed trades
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	TotalProfit   float64 `json:"total_profit"`
	TotalLoss     float64 `json:"total_loss"`

	Notes string `json:"notes"`
}

// NewBot builds a Bot with validated strategy parameters.
func NewBot(botID, name, targetURL, targetAddress string, copyRatio, minTrade, maxTrade, stopLossPct, maxDailyLoss, initialBalance float64) (*Bot, error) {
	if copyRatio <= 0 || copyRatio > 1 {
		return nil, fmt.Errorf("copy ratio must be in (0, 1], got %v", copyRatio)
	}
	if minTrade < 0 || maxTrade <= 0 || minTrade > maxTrade {
		return nil, fmt.Errorf("invalid trade value bounds [%v, %v]", minTrade, maxTrade)
	}
	if stopLossPct <= 0 {
		return nil, fmt.Errorf("stop loss percentage must be positive, got %v", stopLossPct)
	}
	if maxDailyLoss <= 0 {
		return nil, fmt.Errorf("max daily loss must be positive, got %v", maxDailyLoss)
	}

	return &Bot{
		BotID:              botID,
		Name:               name,
		Status:             StatusInactive,
		TargetUserURL:      targetURL,
		TargetUserAddress:  targetAddress,
		CopyRatio:          copyRatio,
		MinTradeValue:      minTrade,
		MaxTradeValue:      maxTrade,
		StopLossPercentage: stopLossPct,
		MaxDailyLoss:       maxDailyLoss,
		PaperWalletBalance: initialBalance,
		PaperWalletInitial: initialBalance,
	}, nil
}

// IsActive reports whether the bot is in a running mode.
func (b *Bot) IsActive() bool {
	return b.Status == StatusPaper || b.Status == StatusProduction
}

// NetProfit is total profit minus total loss.
func (b *Bot) NetProfit() float64 {
	return b.TotalProfit - b.TotalLoss
}

// WinRate is the percentage of closed trades that were profitable.
func (b *Bot) WinRate() float64 {
	if b.TotalTrades == 0 {
		return 0
	}
	return float64(b.WinningTrades) * 100.0 / float64(b.TotalTrades)
}
