package bot

import (
	"context"
	"fmt"
	"time"

	"polymarket-copy-bot-go/internal/metrics"
	"polymarket-copy-bot-go/internal/models"

	"go.uber.org/zap"
)

// TradeEvent is one observed target trade to be copied.
type TradeEvent struct {
	MarketID      string
	Outcome       string
	Amount        float64 // the target's committed currency amount
	Price         float64
	Title         string
	SourceTradeID string
}

// ExecuteTrade sizes and opens a copy of the observed trade. A nil trade
// with a nil error means the event was deliberately not copied (below the
// minimum, or insufficient paper balance).
func (b *CopyBot) ExecuteTrade(ctx context.Context, ev TradeEvent) (*models.Trade, error) {
	params := b.currentParams()

	copyAmount := ev.Amount * params.CopyRatio
	if copyAmount < params.MinTradeValue {
		b.logger.Debug("Trade below minimum, skipping",
			zap.Float64("copy_amount", copyAmount),
			zap.Float64("min", params.MinTradeValue))
		metrics.EventsSkipped.WithLabelValues("below_minimum").Inc()
		return nil, nil
	}
	if copyAmount > params.MaxTradeValue {
		copyAmount = params.MaxTradeValue
	}

	tradeID, err := b.ids.TradeID()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate trade id: %w", err)
	}

	isPaper := b.isPaperMode()
	trade, err := models.NewTrade(tradeID, b.id, isPaper, ev.MarketID, ev.Outcome, copyAmount, ev.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid trade: %w", err)
	}
	trade.Title = ev.Title
	trade.SourceTradeID = ev.SourceTradeID

	if isPaper {
		ok, err := b.store.DebitPaperWallet(b.id, copyAmount)
		if err != nil {
			return nil, fmt.Errorf("failed to debit paper wallet: %w", err)
		}
		if !ok {
			b.logger.Warn("Insufficient paper balance, skipping trade",
				zap.Float64("copy_amount", copyAmount))
			metrics.EventsSkipped.WithLabelValues("insufficient_balance").Inc()
			return nil, nil
		}
	} else {
		ack, err := b.client.PlaceOrder(ctx, ev.MarketID, ev.Outcome, copyAmount, ev.Price)
		if err != nil {
			return nil, fmt.Errorf("failed to place production order: %w", err)
		}
		trade.TargetTradeID = ack.OrderID
	}

	if err := b.store.RecordTrade(trade); err != nil {
		if isPaper {
			// Put the debited amount back so the wallet matches the ledger.
			if cerr := b.store.CreditPaperWallet(b.id, copyAmount); cerr != nil {
				b.logger.Error("Failed to refund paper wallet", zap.Error(cerr))
			}
		}
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}

	b.tradeMu.Lock()
	b.activeTrades[trade.TradeID] = trade
	b.tradeMu.Unlock()

	mode := models.StatusProduction
	if isPaper {
		mode = models.StatusPaper
	}
	metrics.TradesOpened.WithLabelValues(mode).Inc()
	b.updateWalletGauge()

	b.logger.Info("Opened trade",
		zap.String("trade_id", trade.TradeID),
		zap.String("market_id", trade.MarketID),
		zap.String("outcome", trade.Outcome),
		zap.Float64("amount", trade.Amount),
		zap.Float64("price", trade.Price),
		zap.Bool("paper", isPaper))
	b.publish(Event{Type: EventTradeOpened, BotID: b.id, Trade: trade})

	return trade, nil
}

// CloseTrade closes an open trade at the given exit price. The trade must
// be in this bot's active index and still open in the store; otherwise nil
// is returned and nothing is mutated. Concurrent closes of the same trade
// resolve to exactly one winner via the store's conditional update.
func (b *CopyBot) CloseTrade(ctx context.Context, tradeID string, exitPrice float64, reason string) (*models.Trade, error) {
	if exitPrice <= 0 || exitPrice > 1 {
		return nil, fmt.Errorf("exit price must be in (0, 1], got %v", exitPrice)
	}

	b.tradeMu.Lock()
	defer b.tradeMu.Unlock()

	indexed, ok := b.activeTrades[tradeID]
	if !ok {
		b.logger.Debug("Close requested for trade not in active index",
			zap.String("trade_id", tradeID))
		return nil, nil
	}
	if indexed.BotID != b.id {
		return nil, nil
	}

	stored, err := b.store.GetTrade(tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade %s: %w", tradeID, err)
	}
	if stored == nil || !stored.IsOpen() {
		// Index is stale; drop the entry and treat as already closed.
		delete(b.activeTrades, tradeID)
		return nil, nil
	}

	shares := stored.Shares()
	closeValue := shares * exitPrice
	profitLoss := closeValue - stored.Amount
	closedAt := time.Now().UTC()

	won, err := b.store.CloseTrade(tradeID, exitPrice, closeValue, profitLoss, closedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to close trade %s: %w", tradeID, err)
	}
	if !won {
		delete(b.activeTrades, tradeID)
		return nil, nil
	}

	if stored.IsPaperTrade && closeValue > 0 {
		if err := b.store.CreditPaperWallet(b.id, closeValue); err != nil {
			b.logger.Error("Failed to credit paper wallet on close", zap.Error(err))
		}
	}

	delete(b.activeTrades, tradeID)

	if _, err := b.store.UpdateBotPerformance(b.id); err != nil {
		b.logger.Error("Failed to update performance aggregates", zap.Error(err))
	}

	stored.Status = models.TradeClosed
	stored.ClosedAt = &closedAt
	stored.ExitPrice = &exitPrice
	stored.CloseValue = &closeValue
	stored.ProfitLoss = &profitLoss

	metrics.TradesClosed.WithLabelValues(reason).Inc()
	b.updateWalletGauge()

	b.logger.Info("Closed trade",
		zap.String("trade_id", tradeID),
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("profit_loss", profitLoss))
	b.publish(Event{Type: EventTradeClosed, BotID: b.id, Trade: stored, Note: reason})

	return stored, nil
}

// UnrealizedPnL computes the mark-to-market profit of an open trade at the
// given price. It is a pure read; the false return means the trade is not
// in the active index.
func (b *CopyBot) UnrealizedPnL(tradeID string, currentPrice float64) (float64, bool) {
	b.tradeMu.Lock()
	defer b.tradeMu.Unlock()

	trade, ok := b.activeTrades[tradeID]
	if !ok {
		return 0, false
	}
	return trade.Shares()*currentPrice - trade.Amount, true
}

func (b *CopyBot) updateWalletGauge() {
	balance, err := b.store.GetPaperWalletBalance(b.id)
	if err != nil {
		return
	}
	metrics.PaperWalletBalance.WithLabelValues(b.id).Set(balance)
}
