package idgen

import (
	"fmt"
	"math/rand"
	"sync"
)

const (
	minID = 1000000
	maxID = 9999999

	maxAttempts = 100
)

// Generator produces unique prefixed 7-digit identifiers, e.g. BOT1234567
// or TRD1234567. Previously issued IDs can be registered on startup so
// rehydrated rows are never collided with.
type Generator struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewGenerator creates an empty ID generator.
func NewGenerator() *Generator {
	return &Generator{used: make(map[string]struct{})}
}

// Register marks an existing ID as used.
func (g *Generator) Register(id string) {
	g.mu.Lock()
	g.used[id] = struct{}{}
	g.mu.Unlock()
}

// Generate returns a new unique ID with the given prefix.
func (g *Generator) Generate(prefix string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := 0; i < maxAttempts; i++ {
		id := fmt.Sprintf("%s%d", prefix, minID+rand.Intn(maxID-minID+1))
		if _, taken := g.used[id]; !taken {
			g.used[id] = struct{}{}
			return id, nil
		}
	}
	return "", fmt.Errorf("could not generate unique id after %d attempts", maxAttempts)
}

// BotID returns a new unique bot ID.
func (g *Generator) BotID() (string, error) {
	return g.Generate("BOT")
}

// TradeID returns a new unique trade ID.
func (g *Generator) TradeID() (string, error) {
	return g.Generate("TRD")
}
