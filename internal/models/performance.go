package models

import "gorm.io/gorm"

// PerformanceSnapshot is a point-in-time record of a bot's aggregate
// performance, kept for charting.
type PerformanceSnapshot struct {
	gorm.Model
	BotID        string  `gorm:"index;not null" json:"bot_id"`
	TotalProfit  float64 `json:"total_profit"` // net profit at snapshot time
	TotalTrades  int     `json:"total_trades"`
	WinRate      float64 `json:"win_rate"`
	SnapshotType string  `gorm:"default:hourly" json:"snapshot_type"`
}
