package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"polymarket-copy-bot-go/internal/bot"
	"polymarket-copy-bot-go/internal/idgen"
	"polymarket-copy-bot-go/internal/models"
	"polymarket-copy-bot-go/internal/polymarket"
	"polymarket-copy-bot-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockClient is a mock implementation of polymarket.ClientInterface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) GetUserActivity(ctx context.Context, userAddress string, limit int) ([]polymarket.Activity, error) {
	args := m.Called(ctx, userAddress, limit)
	return args.Get(0).([]polymarket.Activity), args.Error(1)
}

func (m *MockClient) GetMarketPrice(ctx context.Context, conditionID, outcome string) (float64, error) {
	args := m.Called(ctx, conditionID, outcome)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) GetMarketInfo(ctx context.Context, marketID string) (*polymarket.MarketInfo, error) {
	args := m.Called(ctx, marketID)
	return args.Get(0).(*polymarket.MarketInfo), args.Error(1)
}

func (m *MockClient) PlaceOrder(ctx context.Context, marketID, outcome string, amount, price float64) (*polymarket.OrderAck, error) {
	args := m.Called(ctx, marketID, outcome, amount, price)
	return args.Get(0).(*polymarket.OrderAck), args.Error(1)
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockClient) GetPositions(ctx context.Context, userAddress string) ([]polymarket.Position, error) {
	args := m.Called(ctx, userAddress)
	return args.Get(0).([]polymarket.Position), args.Error(1)
}

// setupAPI wires an API server over a fresh in-memory database and returns
// a test server pointed at its handler.
func setupAPI(t *testing.T) (*httptest.Server, *store.Store) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.Bot{}, &models.Trade{}, &models.PerformanceSnapshot{}))

	log := zap.NewNop()
	st := store.NewStore(db, log)
	ids := idgen.NewGenerator()
	hub := NewHub(log)
	manager := bot.NewManager(new(MockClient), st, ids, hub,
		bot.Options{PollInterval: time.Hour}, log)

	api := NewAPIServer(0, manager, st, ids, hub, 10000.0, log)
	ts := httptest.NewServer(api.server.Handler)
	t.Cleanup(ts.Close)

	return ts, st
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	data, err := json.Marshal(body)
	assert.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	assert.NoError(t, err)
	return resp
}

func TestCreateBotHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		ts, st := setupAPI(t)

		// Act
		resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
			"name":                 "my-bot",
			"target_user_url":      "https://polymarket.com/user/0xabc123",
			"copy_ratio":           0.5,
			"min_trade_value":      5.0,
			"max_trade_value":      500.0,
			"stop_loss_percentage": 10.0,
			"max_daily_loss":       100.0,
		})
		defer resp.Body.Close()

		// Assert
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var created models.Bot
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		assert.NotEmpty(t, created.BotID)
		assert.Equal(t, "0xabc123", created.TargetUserAddress)
		assert.Equal(t, 10000.0, created.PaperWalletBalance)

		stored, err := st.GetBot(created.BotID)
		assert.NoError(t, err)
		assert.NotNil(t, stored)
	})

	t.Run("InvalidTargetURL", func(t *testing.T) {
		// Arrange
		ts, _ := setupAPI(t)

		// Act
		resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
			"name":                 "my-bot",
			"target_user_url":      "https://polymarket.com/markets/nope",
			"copy_ratio":           0.5,
			"min_trade_value":      5.0,
			"max_trade_value":      500.0,
			"stop_loss_percentage": 10.0,
			"max_daily_loss":       100.0,
		})
		defer resp.Body.Close()

		// Assert
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidParameters", func(t *testing.T) {
		// Arrange
		ts, _ := setupAPI(t)

		// Act: zero copy ratio
		resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
			"name":                 "my-bot",
			"target_user_url":      "https://polymarket.com/user/0xabc123",
			"copy_ratio":           0.0,
			"min_trade_value":      5.0,
			"max_trade_value":      500.0,
			"stop_loss_percentage": 10.0,
			"max_daily_loss":       100.0,
		})
		defer resp.Body.Close()

		// Assert
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetBotHandler_NotFound(t *testing.T) {
	// Arrange
	ts, _ := setupAPI(t)

	// Act
	resp, err := http.Get(ts.URL + "/bots/BOT0000000")
	assert.NoError(t, err)
	defer resp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartStopHandlers(t *testing.T) {
	// Arrange
	ts, st := setupAPI(t)
	resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
		"name":                 "my-bot",
		"target_user_url":      "https://polymarket.com/user/0xabc123",
		"copy_ratio":           0.5,
		"min_trade_value":      5.0,
		"max_trade_value":      500.0,
		"stop_loss_percentage": 10.0,
		"max_daily_loss":       100.0,
	})
	var created models.Bot
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	// Act: start in paper mode
	resp = postJSON(t, ts.URL+"/bots/"+created.BotID+"/start", map[string]string{"mode": "paper"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	row, err := st.GetBot(created.BotID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaper, row.Status)

	// Wallet reset must be refused while the bot runs.
	resp = postJSON(t, ts.URL+"/bots/"+created.BotID+"/wallet/reset", map[string]string{})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Act: stop
	resp = postJSON(t, ts.URL+"/bots/"+created.BotID+"/stop", map[string]string{})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	row, err = st.GetBot(created.BotID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusInactive, row.Status)

	// Reset works once stopped.
	resp = postJSON(t, ts.URL+"/bots/"+created.BotID+"/wallet/reset", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateBotHandler(t *testing.T) {
	// Arrange
	ts, st := setupAPI(t)
	resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
		"name":                 "my-bot",
		"target_user_url":      "https://polymarket.com/user/0xabc123",
		"copy_ratio":           0.5,
		"min_trade_value":      5.0,
		"max_trade_value":      500.0,
		"stop_loss_percentage": 10.0,
		"max_daily_loss":       100.0,
	})
	var created models.Bot
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	// Act
	data, _ := json.Marshal(map[string]float64{"copy_ratio": 0.25})
	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/bots/"+created.BotID, bytes.NewReader(data))
	assert.NoError(t, err)
	patchResp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer patchResp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, patchResp.StatusCode)
	row, err := st.GetBot(created.BotID)
	assert.NoError(t, err)
	assert.Equal(t, 0.25, row.CopyRatio)
}

func TestCloseTradeHandler_NotOpen(t *testing.T) {
	// Arrange
	ts, _ := setupAPI(t)
	resp := postJSON(t, ts.URL+"/bots", map[string]interface{}{
		"name":                 "my-bot",
		"target_user_url":      "https://polymarket.com/user/0xabc123",
		"copy_ratio":           0.5,
		"min_trade_value":      5.0,
		"max_trade_value":      500.0,
		"stop_loss_percentage": 10.0,
		"max_daily_loss":       100.0,
	})
	var created models.Bot
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	// Act: close a trade that does not exist
	closeResp := postJSON(t, ts.URL+"/bots/"+created.BotID+"/trades/TRD9999999/close",
		map[string]float64{"exit_price": 0.5})
	defer closeResp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusConflict, closeResp.StatusCode)
}

func TestHealthHandler(t *testing.T) {
	ts, _ := setupAPI(t)

	resp, err := http.Get(ts.URL + "/health")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
