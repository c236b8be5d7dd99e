package bot

import "polymarket-copy-bot-go/internal/models"

// Event types published to the event hub.
const (
	EventTradeOpened  = "trade_opened"
	EventTradeClosed  = "trade_closed"
	EventBotSuspended = "bot_suspended"
)

// Event is a notification about bot activity, consumed by the web layer.
type Event struct {
	Type  string        `json:"type"`
	BotID string        `json:"bot_id"`
	Trade *models.Trade `json:"trade,omitempty"`
	Note  string        `json:"note,omitempty"`
}

// EventPublisher receives bot events for fan-out. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

func (b *CopyBot) publish(event Event) {
	if b.events != nil {
		b.events.Publish(event)
	}
}
