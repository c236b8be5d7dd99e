package store

import (
	"testing"
	"time"

	"polymarket-copy-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupStore creates a store over a fresh in-memory database.
func setupStore(t *testing.T) *Store {
	// Use a new, non-shared in-memory database for each test to ensure isolation.
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.Bot{}, &models.Trade{}, &models.PerformanceSnapshot{})
	assert.NoError(t, err)

	return NewStore(db, zap.NewNop())
}

func createTestBot(t *testing.T, s *Store, botID string) *models.Bot {
	bot, err := models.NewBot(botID, "test-bot",
		"https://polymarket.com/user/0xabc123", "0xabc123",
		0.5, 5.0, 500.0, 10.0, 100.0, 1000.0)
	assert.NoError(t, err)
	assert.NoError(t, s.CreateBot(bot))
	return bot
}

func TestGetBot_NotFound(t *testing.T) {
	s := setupStore(t)

	bot, err := s.GetBot("BOT0000000")
	assert.NoError(t, err)
	assert.Nil(t, bot)
}

func TestUpdateBot_NotFound(t *testing.T) {
	s := setupStore(t)

	bot, err := s.UpdateBot("BOT0000000", map[string]interface{}{"name": "x"})
	assert.NoError(t, err)
	assert.Nil(t, bot)
}

func TestDebitPaperWallet_AtomicGuard(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")

	// Act / Assert: a debit within balance succeeds
	ok, err := s.DebitPaperWallet("BOT1000001", 400.0)
	assert.NoError(t, err)
	assert.True(t, ok)

	// An overdraft is refused and changes nothing.
	ok, err = s.DebitPaperWallet("BOT1000001", 700.0)
	assert.NoError(t, err)
	assert.False(t, ok)

	balance, err := s.GetPaperWalletBalance("BOT1000001")
	assert.NoError(t, err)
	assert.Equal(t, 600.0, balance)
}

func TestResetPaperWallet(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")
	ok, err := s.DebitPaperWallet("BOT1000001", 900.0)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Act
	assert.NoError(t, s.ResetPaperWallet("BOT1000001"))

	// Assert
	balance, err := s.GetPaperWalletBalance("BOT1000001")
	assert.NoError(t, err)
	assert.Equal(t, 1000.0, balance)
}

func TestCloseTrade_OnlyOnce(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")
	trade, err := models.NewTrade("TRD1000001", "BOT1000001", true, "0xm1", "Yes", 50.0, 0.5)
	assert.NoError(t, err)
	assert.NoError(t, s.RecordTrade(trade))

	// Act: two concurrent-style close attempts
	won, err := s.CloseTrade("TRD1000001", 0.6, 60.0, 10.0, time.Now().UTC())
	assert.NoError(t, err)
	assert.True(t, won)

	won, err = s.CloseTrade("TRD1000001", 0.7, 70.0, 20.0, time.Now().UTC())
	assert.NoError(t, err)
	assert.False(t, won)

	// Assert: the first close's exit fields stand
	stored, err := s.GetTrade("TRD1000001")
	assert.NoError(t, err)
	assert.Equal(t, models.TradeClosed, stored.Status)
	assert.Equal(t, 0.6, *stored.ExitPrice)
	assert.Equal(t, 10.0, *stored.ProfitLoss)
}

func TestUpdateBotPerformance_Aggregates(t *testing.T) {
	// Arrange: two winners, one loser, one still open
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")

	now := time.Now().UTC()
	fixtures := []struct {
		id    string
		pl    float64
		close bool
	}{
		{"TRD1000001", 10.0, true},
		{"TRD1000002", 5.0, true},
		{"TRD1000003", -8.0, true},
		{"TRD1000004", 0, false},
	}
	for _, f := range fixtures {
		trade, err := models.NewTrade(f.id, "BOT1000001", true, "0xm1", "Yes", 50.0, 0.5)
		assert.NoError(t, err)
		assert.NoError(t, s.RecordTrade(trade))
		if f.close {
			won, err := s.CloseTrade(f.id, 0.5, 50.0+f.pl, f.pl, now)
			assert.NoError(t, err)
			assert.True(t, won)
		}
	}

	// Act
	bot, err := s.UpdateBotPerformance("BOT1000001")

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 3, bot.TotalTrades)
	assert.Equal(t, 2, bot.WinningTrades)
	assert.Equal(t, 15.0, bot.TotalProfit)
	assert.Equal(t, 8.0, bot.TotalLoss)
	assert.Equal(t, 7.0, bot.NetProfit())
	assert.InDelta(t, 66.667, bot.WinRate(), 0.01)
}

func TestDailyRealizedLoss_WindowAndSign(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	// A recent loss, an old loss outside the window, and a recent win.
	fixtures := []struct {
		id       string
		pl       float64
		closedAt time.Time
	}{
		{"TRD1000001", -10.0, now},
		{"TRD1000002", -20.0, old},
		{"TRD1000003", 15.0, now},
	}
	for _, f := range fixtures {
		trade, err := models.NewTrade(f.id, "BOT1000001", true, "0xm1", "Yes", 50.0, 0.5)
		assert.NoError(t, err)
		assert.NoError(t, s.RecordTrade(trade))
		won, err := s.CloseTrade(f.id, 0.5, 50.0+f.pl, f.pl, f.closedAt)
		assert.NoError(t, err)
		assert.True(t, won)
	}

	// Act
	loss, err := s.DailyRealizedLoss("BOT1000001", now.Add(-24*time.Hour))

	// Assert: only the recent loss counts; wins do not offset it
	assert.NoError(t, err)
	assert.Equal(t, 10.0, loss)
}

func TestSnapshotAndHistory(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")

	// Act
	snap, err := s.SnapshotPerformance("BOT1000001", "hourly")
	assert.NoError(t, err)
	assert.NotNil(t, snap)

	history, err := s.PerformanceHistory("BOT1000001", time.Now().UTC().Add(-time.Hour))

	// Assert
	assert.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, "hourly", history[0].SnapshotType)
}

func TestDeleteBot_RemovesTrades(t *testing.T) {
	// Arrange
	s := setupStore(t)
	createTestBot(t, s, "BOT1000001")
	trade, err := models.NewTrade("TRD1000001", "BOT1000001", true, "0xm1", "Yes", 50.0, 0.5)
	assert.NoError(t, err)
	assert.NoError(t, s.RecordTrade(trade))

	// Act
	assert.NoError(t, s.DeleteBot("BOT1000001"))

	// Assert
	bot, err := s.GetBot("BOT1000001")
	assert.NoError(t, err)
	assert.Nil(t, bot)

	stored, err := s.GetTrade("TRD1000001")
	assert.NoError(t, err)
	assert.Nil(t, stored)
}
