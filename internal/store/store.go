package store

import (
	"errors"
	"fmt"
	"time"

	"polymarket-copy-bot-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the ledger store: bot rows, paper wallets and trade rows.
// Every mutation is a single statement so the database's row-level
// atomicity is the consistency guarantee; no multi-call transactions
// are required by callers.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a ledger store over an open gorm connection.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store")}
}

// CreateBot inserts a new bot row.
func (s *Store) CreateBot(bot *models.Bot) error {
	if err := s.db.Create(bot).Error; err != nil {
		return fmt.Errorf("failed to create bot %s: %w", bot.BotID, err)
	}
	s.logger.Info("Created bot", zap.String("bot_id", bot.BotID))
	return nil
}

// GetBot returns the bot row, or nil if no such bot exists.
func (s *Store) GetBot(botID string) (*models.Bot, error) {
	var bot models.Bot
	err := s.db.Where("bot_id = ?", botID).First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot %s: %w", botID, err)
	}
	return &bot, nil
}

// GetAllBots returns all bots, optionally filtered by status.
func (s *Store) GetAllBots(status string) ([]models.Bot, error) {
	var bots []models.Bot
	q := s.db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	return bots, nil
}

// UpdateBot applies a partial update to a bot row and returns the new row.
func (s *Store) UpdateBot(botID string, updates map[string]interface{}) (*models.Bot, error) {
	res := s.db.Model(&models.Bot{}).Where("bot_id = ?", botID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update bot %s: %w", botID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetBot(botID)
}

// DeleteBot removes a bot row and its trades.
func (s *Store) DeleteBot(botID string) error {
	if err := s.db.Where("bot_id = ?", botID).Delete(&models.Trade{}).Error; err != nil {
		return fmt.Errorf("failed to delete trades for bot %s: %w", botID, err)
	}
	if err := s.db.Where("bot_id = ?", botID).Delete(&models.Bot{}).Error; err != nil {
		return fmt.Errorf("failed to delete bot %s: %w", botID, err)
	}
	s.logger.Info("Deleted bot", zap.String("bot_id", botID))
	return nil
}

// DebitPaperWallet atomically subtracts amount from the bot's paper wallet.
// The balance check and the subtraction happen in one statement; a false
// return means the balance was insufficient and nothing changed.
func (s *Store) DebitPaperWallet(botID string, amount float64) (bool, error) {
	res := s.db.Model(&models.Bot{}).
		Where("bot_id = ? AND paper_wallet_balance >= ?", botID, amount).
		Update("paper_wallet_balance", gorm.Expr("paper_wallet_balance - ?", amount))
	if res.Error != nil {
		return false, fmt.Errorf("failed to debit wallet for bot %s: %w", botID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreditPaperWallet atomically adds amount to the bot's paper wallet.
func (s *Store) CreditPaperWallet(botID string, amount float64) error {
	res := s.db.Model(&models.Bot{}).
		Where("bot_id = ?", botID).
		Update("paper_wallet_balance", gorm.Expr("paper_wallet_balance + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to credit wallet for bot %s: %w", botID, res.Error)
	}
	return nil
}

// ResetPaperWallet restores the paper wallet to its initial balance.
func (s *Store) ResetPaperWallet(botID string) error {
	res := s.db.Model(&models.Bot{}).
		Where("bot_id = ?", botID).
		Update("paper_wallet_balance", gorm.Expr("paper_wallet_initial"))
	if res.Error != nil {
		return fmt.Errorf("failed to reset wallet for bot %s: %w", botID, res.Error)
	}
	s.logger.Info("Reset paper wallet", zap.String("bot_id", botID))
	return nil
}

// GetPaperWalletBalance returns the current paper wallet balance.
func (s *Store) GetPaperWalletBalance(botID string) (float64, error) {
	bot, err := s.GetBot(botID)
	if err != nil {
		return 0, err
	}
	if bot == nil {
		return 0, fmt.Errorf("bot not found: %s", botID)
	}
	return bot.PaperWalletBalance, nil
}

// RecordTrade inserts a new trade row.
func (s *Store) RecordTrade(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to record trade %s: %w", trade.TradeID, err)
	}
	s.logger.Info("Recorded trade",
		zap.String("trade_id", trade.TradeID),
		zap.String("bot_id", trade.BotID),
		zap.Float64("amount", trade.Amount))
	return nil
}

// GetTrade returns the trade row, or nil if no such trade exists.
func (s *Store) GetTrade(tradeID string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.Where("trade_id = ?", tradeID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", tradeID, err)
	}
	return &trade, nil
}

// GetBotTrades returns a bot's trades, newest first, optionally filtered
// by status. A non-positive limit returns all rows.
func (s *Store) GetBotTrades(botID, status string, limit, offset int) ([]models.Trade, error) {
	var trades []models.Trade
	q := s.db.Where("bot_id = ?", botID).Order("opened_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades for bot %s: %w", botID, err)
	}
	return trades, nil
}

// GetOpenTrades returns all open trades for a bot, used to rehydrate the
// in-memory active-trade index on bot start.
func (s *Store) GetOpenTrades(botID string) ([]models.Trade, error) {
	return s.GetBotTrades(botID, models.TradeOpen, 0, 0)
}

// CloseTrade marks a trade closed and sets all exit fields in a single
// conditional update. The status guard makes concurrent close attempts
// safe: only one caller observes rows affected, the rest get false.
func (s *Store) CloseTrade(tradeID string, exitPrice, closeValue, profitLoss float64, closedAt time.Time) (bool, error) {
	res := s.db.Model(&models.Trade{}).
		Where("trade_id = ? AND status = ?", tradeID, models.TradeOpen).
		Updates(map[string]interface{}{
			"status":      models.TradeClosed,
			"closed_at":   closedAt,
			"exit_price":  exitPrice,
			"close_value": closeValue,
			"profit_loss": profitLoss,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to close trade %s: %w", tradeID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// performanceRow carries the aggregate query result.
type performanceRow struct {
	TotalTrades   int
	WinningTrades int
	TotalProfit   float64
	TotalLoss     float64
}

// UpdateBotPerformance recomputes the bot's aggregate counters from its
// closed trades and persists them on the bot row.
func (s *Store) UpdateBotPerformance(botID string) (*models.Bot, error) {
	var row performanceRow
	err := s.db.Raw(`
		SELECT
			COUNT(*) AS total_trades,
			COALESCE(SUM(CASE WHEN profit_loss > 0 THEN 1 ELSE 0 END), 0) AS winning_trades,
			COALESCE(SUM(CASE WHEN profit_loss > 0 THEN profit_loss ELSE 0 END), 0) AS total_profit,
			COALESCE(SUM(CASE WHEN profit_loss < 0 THEN ABS(profit_loss) ELSE 0 END), 0) AS total_loss
		FROM trades
		WHERE bot_id = ? AND status = ?`, botID, models.TradeClosed).Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate performance for bot %s: %w", botID, err)
	}

	return s.UpdateBot(botID, map[string]interface{}{
		"total_trades":   row.TotalTrades,
		"winning_trades": row.WinningTrades,
		"total_profit":   row.TotalProfit,
		"total_loss":     row.TotalLoss,
	})
}

// DailyRealizedLoss sums the absolute losses of a bot's trades closed at
// or after the given time. Profitable trades do not offset the sum.
func (s *Store) DailyRealizedLoss(botID string, since time.Time) (float64, error) {
	var total float64
	err := s.db.Raw(`
		SELECT COALESCE(SUM(ABS(profit_loss)), 0)
		FROM trades
		WHERE bot_id = ? AND status = ? AND profit_loss < 0 AND closed_at >= ?`,
		botID, models.TradeClosed, since).Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily loss for bot %s: %w", botID, err)
	}
	return total, nil
}

// SnapshotPerformance records the bot's current aggregates as a
// time-series point for charting.
func (s *Store) SnapshotPerformance(botID, snapshotType string) (*models.PerformanceSnapshot, error) {
	bot, err := s.GetBot(botID)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, nil
	}

	snap := &models.PerformanceSnapshot{
		BotID:        botID,
		TotalProfit:  bot.NetProfit(),
		TotalTrades:  bot.TotalTrades,
		WinRate:      bot.WinRate(),
		SnapshotType: snapshotType,
	}
	if err := s.db.Create(snap).Error; err != nil {
		return nil, fmt.Errorf("failed to snapshot performance for bot %s: %w", botID, err)
	}
	return snap, nil
}

// PerformanceHistory returns snapshots taken at or after the given time,
// oldest first.
func (s *Store) PerformanceHistory(botID string, since time.Time) ([]models.PerformanceSnapshot, error) {
	var snaps []models.PerformanceSnapshot
	err := s.db.Where("bot_id = ? AND created_at >= ?", botID, since).
		Order("created_at ASC").Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load performance history for bot %s: %w", botID, err)
	}
	return snaps, nil
}
