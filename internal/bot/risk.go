package bot

import (
	"context"
	"fmt"
	"time"

	"polymarket-copy-bot-go/internal/metrics"
	"polymarket-copy-bot-go/internal/models"
	"polymarket-copy-bot-go/internal/polymarket"

	"go.uber.org/zap"
)

// closeRequest is one queued automatic close decision.
type closeRequest struct {
	tradeID   string
	exitPrice float64
	reason    string
}

// Close reasons recorded on automatic closes.
const (
	ReasonManual     = "manual"
	ReasonStopLoss   = "stop_loss"
	ReasonSourceExit = "source_exit"
)

// monitorRisk runs the per-cycle risk passes: stop-loss marks, target exit
// mirroring, then the daily loss limit. It returns true when the bot was
// suspended and the loop must halt. A bot with no open positions skips the
// whole monitor, so an operator restart after a suspension is not
// immediately re-suspended by losses still inside the trailing window.
func (b *CopyBot) monitorRisk(ctx context.Context) bool {
	open := b.openTradesSnapshot()
	if len(open) == 0 {
		return false
	}

	var queue []closeRequest
	queued := make(map[string]bool)

	// Stop-loss pass: mark every open trade to the current price.
	params := b.currentParams()
	for _, t := range open {
		price, err := b.client.GetMarketPrice(ctx, t.MarketID, t.Outcome)
		if err != nil || price <= 0 {
			continue
		}
		pnlPct := (t.Shares()*price - t.Amount) / t.Amount * 100
		if pnlPct <= -params.StopLossPercentage {
			queue = append(queue, closeRequest{t.TradeID, price, ReasonStopLoss})
			queued[t.TradeID] = true
		}
	}

	// Source-exit pass: mirror the target's SELLs in markets we hold.
	exits, err := b.sourceExits(ctx, open, queued)
	if err != nil {
		b.logger.Error("Source exit check failed", zap.Error(err))
	} else {
		queue = append(queue, exits...)
	}

	for _, req := range queue {
		if _, err := b.CloseTrade(ctx, req.tradeID, req.exitPrice, req.reason); err != nil {
			b.logger.Error("Automatic close failed",
				zap.Error(err),
				zap.String("trade_id", req.tradeID),
				zap.String("reason", req.reason))
		}
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	loss, err := b.store.DailyRealizedLoss(b.id, since)
	if err != nil {
		b.logger.Error("Daily loss query failed", zap.Error(err))
		return false
	}
	params = b.currentParams()
	if loss >= params.MaxDailyLoss {
		b.suspend(loss, params.MaxDailyLoss)
		return true
	}
	return false
}

// sourceExits matches the target's recent SELL events against our open
// trades on the same market and outcome.
func (b *CopyBot) sourceExits(ctx context.Context, open []*models.Trade, queued map[string]bool) ([]closeRequest, error) {
	activities, err := b.client.GetUserActivity(ctx, b.targetAddress, b.activityLimit)
	if err != nil {
		return nil, err
	}

	var out []closeRequest
	for i := range activities {
		ev := &activities[i]
		if ev.Side != polymarket.SideSell {
			continue
		}
		for _, t := range open {
			if queued[t.TradeID] || t.MarketID != ev.ConditionID || t.Outcome != ev.Outcome {
				continue
			}
			price := ev.Price
			if price <= 0 {
				price, err = b.client.GetMarketPrice(ctx, t.MarketID, t.Outcome)
				if err != nil || price <= 0 {
					continue
				}
			}
			out = append(out, closeRequest{t.TradeID, price, ReasonSourceExit})
			queued[t.TradeID] = true
		}
	}
	return out, nil
}

// suspend halts the bot after the daily loss limit was reached. It cancels
// the polling loop without waiting on it, since it runs from inside that
// loop, and records an operator-visible note on the bot row.
func (b *CopyBot) suspend(loss, limit float64) {
	metrics.Suspensions.Inc()

	b.lifeMu.Lock()
	b.running = false
	b.status = models.StatusInactive
	if b.cancel != nil {
		b.cancel()
	}
	b.lifeMu.Unlock()

	note := fmt.Sprintf("suspended %s: daily loss %.2f reached limit %.2f",
		time.Now().UTC().Format(time.RFC3339), loss, limit)

	bot, err := b.store.GetBot(b.id)
	if err == nil && bot != nil && bot.Notes != "" {
		note = bot.Notes + "\n" + note
	}
	if _, err := b.store.UpdateBot(b.id, map[string]interface{}{
		"status": models.StatusInactive,
		"notes":  note,
	}); err != nil {
		b.logger.Error("Failed to persist suspension", zap.Error(err))
	}

	b.logger.Warn("Bot suspended by daily loss limit",
		zap.Float64("daily_loss", loss),
		zap.Float64("limit", limit))
	b.publish(Event{Type: EventBotSuspended, BotID: b.id, Note: note})
}
