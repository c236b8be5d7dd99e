package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"polymarket-copy-bot-go/internal/idgen"
	"polymarket-copy-bot-go/internal/models"
	"polymarket-copy-bot-go/internal/polymarket"
	"polymarket-copy-bot-go/internal/store"

	"go.uber.org/zap"
)

// Params are the mutable strategy parameters of a copy bot.
type Params struct {
	CopyRatio          float64
	MinTradeValue      float64
	MaxTradeValue      float64
	StopLossPercentage float64
	MaxDailyLoss       float64
}

// ParamsUpdate is a partial parameter patch; nil fields are left unchanged.
type ParamsUpdate struct {
	CopyRatio          *float64 `json:"copy_ratio,omitempty"`
	MinTradeValue      *float64 `json:"min_trade_value,omitempty"`
	MaxTradeValue      *float64 `json:"max_trade_value,omitempty"`
	StopLossPercentage *float64 `json:"stop_loss_percentage,omitempty"`
	MaxDailyLoss       *float64 `json:"max_daily_loss,omitempty"`
}

// CopyBot watches a target user's activity and replicates a scaled copy of
// each BUY into its own ledger. It owns exactly one polling goroutine; the
// active-trade index mirrors the store's open rows and is rehydrated on
// every start.
type CopyBot struct {
	id            string
	name          string
	targetAddress string

	logger *zap.Logger
	client polymarket.ClientInterface
	store  *store.Store
	ids    *idgen.Generator
	events EventPublisher

	pollInterval  time.Duration
	activityLimit int

	paramMu sync.RWMutex
	params  Params

	// Lifecycle state, guarded by lifeMu.
	lifeMu  sync.Mutex
	status  string
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Active-trade index, guarded by tradeMu. tradeMu also serializes the
	// close path against the web layer's concurrent close calls.
	tradeMu      sync.Mutex
	activeTrades map[string]*models.Trade

	seen *seenSet
}

// Options carries the per-deployment knobs shared by all bots.
type Options struct {
	PollInterval  time.Duration
	ActivityLimit int
	SeenCap       int
}

// NewCopyBot builds a bot runtime from its stored row.
func NewCopyBot(row *models.Bot, client polymarket.ClientInterface, st *store.Store, ids *idgen.Generator, events EventPublisher, opts Options, logger *zap.Logger) *CopyBot {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.ActivityLimit <= 0 {
		opts.ActivityLimit = 10
	}
	if opts.SeenCap <= 0 {
		opts.SeenCap = 1000
	}

	return &CopyBot{
		id:            row.BotID,
		name:          row.Name,
		targetAddress: row.TargetUserAddress,
		logger:        logger.Named(row.BotID),
		client:        client,
		store:         st,
		ids:           ids,
		events:        events,
		pollInterval:  opts.PollInterval,
		activityLimit: opts.ActivityLimit,
		params: Params{
			CopyRatio:          row.CopyRatio,
			MinTradeValue:      row.MinTradeValue,
			MaxTradeValue:      row.MaxTradeValue,
			StopLossPercentage: row.StopLossPercentage,
			MaxDailyLoss:       row.MaxDailyLoss,
		},
		status:       models.StatusInactive,
		activeTrades: make(map[string]*models.Trade),
		seen:         newSeenSet(opts.SeenCap),
	}
}

// ID returns the bot identifier.
func (b *CopyBot) ID() string { return b.id }

// Status returns the current lifecycle status.
func (b *CopyBot) Status() string {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.status
}

// IsRunning reports whether the polling loop is active.
func (b *CopyBot) IsRunning() bool {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.running
}

// isPaperMode reports whether opens should hit the paper wallet. Anything
// other than an explicit production status trades on paper.
func (b *CopyBot) isPaperMode() bool {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.status != models.StatusProduction
}

// Start transitions the bot into the given mode and spawns the polling
// loop. Starting an already-running bot is a warning-level no-op.
func (b *CopyBot) Start(mode string) error {
	if mode != models.StatusPaper && mode != models.StatusProduction {
		return fmt.Errorf("invalid mode: %s", mode)
	}

	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.running {
		b.logger.Warn("Bot already running", zap.String("status", b.status))
		return nil
	}

	if err := b.rehydrateIndex(); err != nil {
		return fmt.Errorf("failed to rehydrate active trades: %w", err)
	}

	b.status = mode
	b.running = true
	if _, err := b.store.UpdateBot(b.id, map[string]interface{}{"status": mode}); err != nil {
		b.logger.Error("Failed to persist bot status", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.run(ctx, b.done)

	b.logger.Info("Bot started", zap.String("mode", mode))
	return nil
}

// Stop cancels the polling loop and waits for it to exit. Stopping an
// already-stopped bot is a warning-level no-op.
func (b *CopyBot) Stop() {
	b.lifeMu.Lock()
	if !b.running {
		b.lifeMu.Unlock()
		b.logger.Warn("Bot not running")
		return
	}
	b.running = false
	b.status = models.StatusInactive
	cancel := b.cancel
	done := b.done
	b.lifeMu.Unlock()

	cancel()
	<-done

	if _, err := b.store.UpdateBot(b.id, map[string]interface{}{"status": models.StatusInactive}); err != nil {
		b.logger.Error("Failed to persist bot status", zap.Error(err))
	}
	b.logger.Info("Bot stopped")
}

// UpdateParameters applies a partial parameter patch and persists it.
// Invalid values reject the whole patch.
func (b *CopyBot) UpdateParameters(u ParamsUpdate) error {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()

	next := b.params
	updates := make(map[string]interface{})

	if u.CopyRatio != nil {
		if *u.CopyRatio <= 0 || *u.CopyRatio > 1 {
			return fmt.Errorf("copy ratio must be in (0, 1], got %v", *u.CopyRatio)
		}
		next.CopyRatio = *u.CopyRatio
		updates["copy_ratio"] = *u.CopyRatio
	}
	if u.MinTradeValue != nil {
		if *u.MinTradeValue < 0 {
			return fmt.Errorf("min trade value must be non-negative, got %v", *u.MinTradeValue)
		}
		next.MinTradeValue = *u.MinTradeValue
		updates["min_trade_value"] = *u.MinTradeValue
	}
	if u.MaxTradeValue != nil {
		if *u.MaxTradeValue <= 0 {
			return fmt.Errorf("max trade value must be positive, got %v", *u.MaxTradeValue)
		}
		next.MaxTradeValue = *u.MaxTradeValue
		updates["max_trade_value"] = *u.MaxTradeValue
	}
	if u.StopLossPercentage != nil {
		if *u.StopLossPercentage <= 0 {
			return fmt.Errorf("stop loss percentage must be positive, got %v", *u.StopLossPercentage)
		}
		next.StopLossPercentage = *u.StopLossPercentage
		updates["stop_loss_percentage"] = *u.StopLossPercentage
	}
	if u.MaxDailyLoss != nil {
		if *u.MaxDailyLoss <= 0 {
			return fmt.Errorf("max daily loss must be positive, got %v", *u.MaxDailyLoss)
		}
		next.MaxDailyLoss = *u.MaxDailyLoss
		updates["max_daily_loss"] = *u.MaxDailyLoss
	}
	if next.MinTradeValue > next.MaxTradeValue {
		return fmt.Errorf("min trade value %v exceeds max trade value %v", next.MinTradeValue, next.MaxTradeValue)
	}

	if len(updates) == 0 {
		return nil
	}

	b.params = next
	if _, err := b.store.UpdateBot(b.id, updates); err != nil {
		b.logger.Error("Failed to persist parameters", zap.Error(err))
	}
	b.logger.Info("Parameters updated")
	return nil
}

// currentParams returns a consistent copy of the strategy parameters.
func (b *CopyBot) currentParams() Params {
	b.paramMu.RLock()
	defer b.paramMu.RUnlock()
	return b.params
}

// rehydrateIndex rebuilds the active-trade index from the store's open
// rows. Caller holds lifeMu.
func (b *CopyBot) rehydrateIndex() error {
	open, err := b.store.GetOpenTrades(b.id)
	if err != nil {
		return err
	}

	b.tradeMu.Lock()
	defer b.tradeMu.Unlock()
	b.activeTrades = make(map[string]*models.Trade, len(open))
	for i := range open {
		t := open[i]
		b.activeTrades[t.TradeID] = &t
		b.ids.Register(t.TradeID)
	}
	b.logger.Info("Rehydrated active trades", zap.Int("count", len(open)))
	return nil
}

// RefreshIndex rebuilds the active-trade index from the store when the bot
// is not running. A running bot keeps its own index; refreshing under it
// would race the polling loop, so this is a no-op then.
func (b *CopyBot) RefreshIndex() error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.running {
		return nil
	}
	return b.rehydrateIndex()
}

// run is the polling loop: activity poll, risk monitor, sleep. Any error
// other than cancellation is logged and the cycle skipped; only the daily
// loss limit or an external Stop terminates the loop.
func (b *CopyBot) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b.logger.Info("Starting copy loop",
		zap.String("target", b.targetAddress),
		zap.Duration("interval", b.pollInterval))

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Copy loop cancelled")
			return
		case <-ticker.C:
			if err := b.pollActivity(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error("Activity poll failed, skipping cycle", zap.Error(err))
				continue
			}
			if halt := b.monitorRisk(ctx); halt {
				b.logger.Warn("Copy loop halted by risk monitor")
				return
			}
		}
	}
}

// openTradesSnapshot returns a copy of the active-trade index values.
func (b *CopyBot) openTradesSnapshot() []*models.Trade {
	b.tradeMu.Lock()
	defer b.tradeMu.Unlock()
	out := make([]*models.Trade, 0, len(b.activeTrades))
	for _, t := range b.activeTrades {
		out = append(out, t)
	}
	return out
}

// OpenTradeCount returns the number of trades in the active index.
func (b *CopyBot) OpenTradeCount() int {
	b.tradeMu.Lock()
	defer b.tradeMu.Unlock()
	return len(b.activeTrades)
}
