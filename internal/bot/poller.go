package bot

import (
	"context"

	"polymarket-copy-bot-go/internal/metrics"
	"polymarket-copy-bot-go/internal/polymarket"

	"go.uber.org/zap"
)

// pollActivity fetches the target's latest activity and copies every new
// BUY. Events without a transaction hash are skipped but not marked seen,
// so a later feed entry carrying the hash is still picked up.
func (b *CopyBot) pollActivity(ctx context.Context) error {
	activities, err := b.client.GetUserActivity(ctx, b.targetAddress, b.activityLimit)
	if err != nil {
		return err
	}

	for i := range activities {
		ev := &activities[i]

		if ev.TransactionHash == "" {
			b.logger.Debug("Activity event without transaction hash, skipping")
			continue
		}
		if b.seen.Seen(ev.TransactionHash) {
			metrics.EventsSkipped.WithLabelValues("duplicate").Inc()
			continue
		}
		if ev.Side != polymarket.SideBuy {
			b.seen.Add(ev.TransactionHash)
			metrics.EventsSkipped.WithLabelValues("not_buy").Inc()
			continue
		}

		title := ev.Title
		if title == "" && ev.ConditionID != "" {
			// Best effort; the trade opens either way.
			if info, ierr := b.client.GetMarketInfo(ctx, ev.ConditionID); ierr == nil {
				title = info.DisplayName()
			}
		}

		_, terr := b.ExecuteTrade(ctx, TradeEvent{
			MarketID:      ev.ConditionID,
			Outcome:       ev.Outcome,
			Amount:        ev.Size,
			Price:         ev.Price,
			Title:         title,
			SourceTradeID: ev.TransactionHash,
		})
		if terr != nil {
			b.logger.Error("Failed to copy trade",
				zap.Error(terr),
				zap.String("transaction_hash", ev.TransactionHash))
		}

		// Mark the event regardless of the outcome so a single bad event
		// cannot be retried into duplicate opens.
		b.seen.Add(ev.TransactionHash)
	}

	return nil
}
