package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"polymarket-copy-bot-go/internal/bot"
	"polymarket-copy-bot-go/internal/idgen"
	"polymarket-copy-bot-go/internal/models"
	"polymarket-copy-bot-go/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIServer provides the HTTP interface for managing copy bots.
type APIServer struct {
	server  *http.Server
	manager *bot.Manager
	store   *store.Store
	ids     *idgen.Generator
	hub     *Hub
	logger  *zap.Logger

	initialBalance float64
}

// NewAPIServer creates the management API server.
func NewAPIServer(port int, manager *bot.Manager, st *store.Store, ids *idgen.Generator, hub *Hub, initialBalance float64, logger *zap.Logger) *APIServer {
	s := &APIServer{
		manager:        manager,
		store:          st,
		ids:            ids,
		hub:            hub,
		logger:         logger.Named("api-server"),
		initialBalance: initialBalance,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.ServeWS)

	mux.HandleFunc("POST /bots", s.createBotHandler)
	mux.HandleFunc("GET /bots", s.listBotsHandler)
	mux.HandleFunc("GET /bots/{id}", s.getBotHandler)
	mux.HandleFunc("PATCH /bots/{id}", s.updateBotHandler)
	mux.HandleFunc("DELETE /bots/{id}", s.deleteBotHandler)

	mux.HandleFunc("POST /bots/{id}/start", s.startBotHandler)
	mux.HandleFunc("POST /bots/{id}/stop", s.stopBotHandler)
	mux.HandleFunc("POST /bots/{id}/wallet/reset", s.resetWalletHandler)

	mux.HandleFunc("GET /bots/{id}/trades", s.listTradesHandler)
	mux.HandleFunc("POST /bots/{id}/trades/{trade_id}/close", s.closeTradeHandler)
	mux.HandleFunc("GET /bots/{id}/performance", s.performanceHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// createBotRequest is the bot creation payload.
type createBotRequest struct {
	Name               string   `json:"name"`
	TargetUserURL      string   `json:"target_user_url"`
	CopyRatio          float64  `json:"copy_ratio"`
	MinTradeValue      float64  `json:"min_trade_value"`
	MaxTradeValue      float64  `json:"max_trade_value"`
	StopLossPercentage float64  `json:"stop_loss_percentage"`
	MaxDailyLoss       float64  `json:"max_daily_loss"`
	InitialBalance     *float64 `json:"initial_balance,omitempty"`
}

func (s *APIServer) createBotHandler(w http.ResponseWriter, r *http.Request) {
	var req createBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	address, err := bot.ExtractUserAddress(req.TargetUserURL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	botID, err := s.ids.BotID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	balance := s.initialBalance
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}

	row, err := models.NewBot(botID, req.Name, req.TargetUserURL, address,
		req.CopyRatio, req.MinTradeValue, req.MaxTradeValue,
		req.StopLossPercentage, req.MaxDailyLoss, balance)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.CreateBot(row); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.manager.CreateBot(row)

	s.writeJSON(w, http.StatusCreated, row)
}

func (s *APIServer) listBotsHandler(w http.ResponseWriter, r *http.Request) {
	bots, err := s.store.GetAllBots(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *APIServer) getBotHandler(w http.ResponseWriter, r *http.Request) {
	row, err := s.store.GetBot(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		s.writeError(w, http.StatusNotFound, "bot not found")
		return
	}
	s.writeJSON(w, http.StatusOK, row)
}

func (s *APIServer) updateBotHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")

	var patch bot.ParamsUpdate
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	row, err := s.store.GetBot(botID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		s.writeError(w, http.StatusNotFound, "bot not found")
		return
	}

	b := s.manager.CreateBot(row)
	if err := b.UpdateParameters(patch); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.store.GetBot(botID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *APIServer) deleteBotHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")

	s.manager.RemoveBot(botID)
	if err := s.store.DeleteBot(botID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": botID})
}

func (s *APIServer) startBotHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode == "" {
		req.Mode = models.StatusPaper
	}

	if err := s.manager.StartBot(botID, req.Mode); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"bot_id": botID, "status": req.Mode})
}

func (s *APIServer) stopBotHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	s.manager.StopBot(botID)
	s.writeJSON(w, http.StatusOK, map[string]string{"bot_id": botID, "status": models.StatusInactive})
}

func (s *APIServer) resetWalletHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")

	if b := s.manager.Get(botID); b != nil && b.IsRunning() {
		s.writeError(w, http.StatusConflict, "stop the bot before resetting its wallet")
		return
	}
	if err := s.store.ResetPaperWallet(botID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	balance, err := s.store.GetPaperWalletBalance(botID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"bot_id": botID, "paper_wallet_balance": balance})
}

func (s *APIServer) listTradesHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	q := r.URL.Query()

	limit := 0
	offset := 0
	fmt.Sscanf(q.Get("limit"), "%d", &limit)
	fmt.Sscanf(q.Get("offset"), "%d", &offset)

	trades, err := s.store.GetBotTrades(botID, q.Get("status"), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *APIServer) closeTradeHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")
	tradeID := r.PathValue("trade_id")

	var req struct {
		ExitPrice float64 `json:"exit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	row, err := s.store.GetBot(botID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		s.writeError(w, http.StatusNotFound, "bot not found")
		return
	}

	b := s.manager.CreateBot(row)
	if err := b.RefreshIndex(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	trade, err := b.CloseTrade(r.Context(), tradeID, req.ExitPrice, bot.ReasonManual)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if trade == nil {
		s.writeError(w, http.StatusConflict, "trade not open for this bot")
		return
	}
	s.writeJSON(w, http.StatusOK, trade)
}

func (s *APIServer) performanceHandler(w http.ResponseWriter, r *http.Request) {
	botID := r.PathValue("id")

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if d := r.URL.Query().Get("days"); d != "" {
		var days int
		if _, err := fmt.Sscanf(d, "%d", &days); err == nil && days > 0 {
			since = time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		}
	}

	snaps, err := s.store.PerformanceHistory(botID, since)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snaps)
}
