package bot

import (
	"fmt"
	"regexp"
	"sync"

	"polymarket-copy-bot-go/internal/idgen"
	"polymarket-copy-bot-go/internal/models"
	"polymarket-copy-bot-go/internal/polymarket"
	"polymarket-copy-bot-go/internal/store"

	"go.uber.org/zap"
)

var userAddressPattern = regexp.MustCompile(`/user/(0x[a-fA-F0-9]+)`)

// ExtractUserAddress pulls the wallet address out of a profile URL like
// https://polymarket.com/user/0xabc123.
func ExtractUserAddress(url string) (string, error) {
	m := userAddressPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("no user address in url: %s", url)
	}
	return m[1], nil
}

// Manager is the registry of live bot runtimes. The store holds the bot
// rows; the manager holds the in-process CopyBot for each row that has
// been instantiated in this process.
type Manager struct {
	logger *zap.Logger
	client polymarket.ClientInterface
	store  *store.Store
	ids    *idgen.Generator
	events EventPublisher
	opts   Options

	mu   sync.Mutex
	bots map[string]*CopyBot
}

// NewManager creates an empty bot registry.
func NewManager(client polymarket.ClientInterface, st *store.Store, ids *idgen.Generator, events EventPublisher, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("manager"),
		client: client,
		store:  st,
		ids:    ids,
		events: events,
		opts:   opts,
		bots:   make(map[string]*CopyBot),
	}
}

// CreateBot instantiates a runtime for a stored bot row and registers it.
// An existing runtime for the same bot ID is reused.
func (m *Manager) CreateBot(row *models.Bot) *CopyBot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bots[row.BotID]; ok {
		return existing
	}

	m.ids.Register(row.BotID)
	b := NewCopyBot(row, m.client, m.store, m.ids, m.events, m.opts, m.logger)
	m.bots[row.BotID] = b
	m.logger.Info("Registered bot", zap.String("bot_id", row.BotID))
	return b
}

// Get returns the runtime for a bot ID, or nil if none is registered.
func (m *Manager) Get(botID string) *CopyBot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bots[botID]
}

// StartBot starts a registered bot in the given mode. The row is loaded
// and registered first if no runtime exists yet.
func (m *Manager) StartBot(botID, mode string) error {
	b := m.Get(botID)
	if b == nil {
		row, err := m.store.GetBot(botID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("bot not found: %s", botID)
		}
		b = m.CreateBot(row)
	}
	return b.Start(mode)
}

// StopBot stops a registered bot. Unknown bots are a no-op.
func (m *Manager) StopBot(botID string) {
	if b := m.Get(botID); b != nil {
		b.Stop()
	}
}

// RemoveBot stops and deregisters a bot runtime. The stored row is left
// for the caller to delete.
func (m *Manager) RemoveBot(botID string) {
	m.mu.Lock()
	b := m.bots[botID]
	delete(m.bots, botID)
	m.mu.Unlock()

	if b != nil {
		b.Stop()
		m.logger.Info("Removed bot", zap.String("bot_id", botID))
	}
}

// Cleanup stops every registered bot. Called on shutdown.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	bots := make([]*CopyBot, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.mu.Unlock()

	for _, b := range bots {
		if b.IsRunning() {
			b.Stop()
		}
	}
	m.logger.Info("Stopped all bots", zap.Int("count", len(bots)))
}

// Count returns the number of registered bot runtimes.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bots)
}
