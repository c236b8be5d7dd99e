package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"polymarket-copy-bot-go/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Trade sides as reported in the activity feed.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// ErrUnavailable marks a network or transport failure talking to the venue.
var ErrUnavailable = errors.New("polymarket unavailable")

// ErrThrottled marks a request that was still being rate limited by the
// venue after the retry budget was exhausted.
var ErrThrottled = errors.New("polymarket throttled")

// HTTPError is a non-2xx, non-throttling response from the venue.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("polymarket http %d: %s", e.StatusCode, e.Body)
}

// Activity is a single entry from a user's activity feed, newest first.
type Activity struct {
	TransactionHash string  `json:"transactionHash"`
	Side            string  `json:"side"`
	Outcome         string  `json:"outcome"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	ConditionID     string  `json:"conditionId"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Timestamp       int64   `json:"timestamp"`
}

// MarketInfo is the display metadata for a market.
type MarketInfo struct {
	Question    string `json:"question"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DisplayName returns the best available human-readable market name.
func (m *MarketInfo) DisplayName() string {
	if m.Question != "" {
		return m.Question
	}
	return m.Title
}

// OrderAck is the venue's acknowledgement of a placed order.
type OrderAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Position is an open position as reported by the venue.
type Position struct {
	MarketID string  `json:"market_id"`
	Outcome  string  `json:"outcome"`
	Size     float64 `json:"size"`
	AvgPrice float64 `json:"avg_price"`
}

// ClientInterface defines the venue operations used by the bots.
type ClientInterface interface {
	GetUserActivity(ctx context.Context, userAddress string, limit int) ([]Activity, error)
	GetMarketPrice(ctx context.Context, conditionID, outcome string) (float64, error)
	GetMarketInfo(ctx context.Context, marketID string) (*MarketInfo, error)
	PlaceOrder(ctx context.Context, marketID, outcome string, amount, price float64) (*OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetPositions(ctx context.Context, userAddress string) ([]Position, error)
}

// Client is the rate-limited gateway to the Polymarket API.
// It implements ClientInterface. All rate-limit bookkeeping is
// serialized internally, so one Client may be shared across bots.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter

	// Backoff state for throttling responses.
	mu             sync.Mutex
	backoff        time.Duration
	initialBackoff time.Duration
	maxRetries     int
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Polymarket API gateway.
func NewClient(cfg *config.Polymarket, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", "polymarket-copy-bot/1.0")
	if cfg.ApiKey != "" {
		client.SetHeader("X-API-KEY", cfg.ApiKey)
	}

	// rate.Every enforces the minimum inter-request delay; burst 1 means
	// the delay applies between every pair of requests.
	delay := time.Duration(cfg.RateLimitDelay * float64(time.Second))
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	initial := time.Duration(cfg.InitialBackoff * float64(time.Second))
	if initial <= 0 {
		initial = time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}

	return &Client{
		client:         client,
		apiKey:         cfg.ApiKey,
		logger:         logger.Named("polymarket"),
		limiter:        limiter,
		backoff:        initial,
		initialBackoff: initial,
		maxRetries:     retries,
	}
}

// nextBackoff returns the current backoff and doubles it for the next
// throttling response.
func (c *Client) nextBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.backoff
	c.backoff *= 2
	return d
}

// resetBackoff restores the backoff to its initial value after a success.
func (c *Client) resetBackoff() {
	c.mu.Lock()
	c.backoff = c.initialBackoff
	c.mu.Unlock()
}

// doRequest executes a request with the minimum inter-request delay and a
// bounded doubling backoff on throttling responses. Transport failures are
// not retried; they surface as ErrUnavailable to the current poll cycle.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		resp, err := req.SetContext(ctx).Execute(method, url)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if resp.StatusCode() == http.StatusTooManyRequests {
			wait := c.nextBackoff()
			c.logger.Warn("Rate limit hit, backing off",
				zap.Duration("backoff", wait),
				zap.Int("attempt", attempt+1))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if resp.IsError() {
			return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.String()}
		}

		c.resetBackoff()
		return resp, nil
	}

	return nil, fmt.Errorf("%w: gave up after %d retries", ErrThrottled, c.maxRetries)
}

// GetUserActivity fetches the most recent activity for a user, newest first.
func (c *Client) GetUserActivity(ctx context.Context, userAddress string, limit int) ([]Activity, error) {
	var activities []Activity

	req := c.client.R().
		SetResult(&activities).
		SetQueryParam("limit", fmt.Sprintf("%d", limit))

	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/users/%s/activity", userAddress), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user activity: %w", err)
	}
	return activities, nil
}

// priceResponse is the market price lookup payload.
type priceResponse struct {
	Price float64 `json:"price"`
}

// GetMarketPrice fetches the current price for one outcome of a market.
func (c *Client) GetMarketPrice(ctx context.Context, conditionID, outcome string) (float64, error) {
	var out priceResponse

	req := c.client.R().
		SetResult(&out).
		SetQueryParam("outcome", outcome)

	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/markets/%s/price", conditionID), req)
	if err != nil {
		return 0, fmt.Errorf("failed to get market price: %w", err)
	}
	return out.Price, nil
}

// GetMarketInfo fetches display metadata for a market.
func (c *Client) GetMarketInfo(ctx context.Context, marketID string) (*MarketInfo, error) {
	var info MarketInfo

	req := c.client.R().SetResult(&info)

	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/markets/%s", marketID), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get market info: %w", err)
	}
	return &info, nil
}

// PlaceOrder places an order on the venue. A fresh client order ID is
// attached so a retried POST cannot double-execute.
func (c *Client) PlaceOrder(ctx context.Context, marketID, outcome string, amount, price float64) (*OrderAck, error) {
	body := map[string]interface{}{
		"market_id":       marketID,
		"outcome":         outcome,
		"amount":          amount,
		"price":           price,
		"client_order_id": uuid.NewString(),
	}

	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&OrderAck{})

	resp, err := c.doRequest(ctx, http.MethodPost, "/orders", req)
	if err != nil {
		c.logger.Error("Failed to place order",
			zap.Error(err),
			zap.String("market_id", marketID),
			zap.String("outcome", outcome))
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	ack := resp.Result().(*OrderAck)
	c.logger.Info("Order placed",
		zap.String("market_id", marketID),
		zap.String("outcome", outcome),
		zap.Float64("amount", amount),
		zap.String("order_id", ack.OrderID))
	return ack, nil
}

// CancelOrder cancels an existing order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	req := c.client.R()

	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/orders/%s", orderID), req)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	c.logger.Info("Order cancelled", zap.String("order_id", orderID))
	return nil
}

// GetPositions fetches a user's open positions on the venue.
func (c *Client) GetPositions(ctx context.Context, userAddress string) ([]Position, error) {
	var positions []Position

	req := c.client.R().SetResult(&positions)

	_, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/users/%s/positions", userAddress), req)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}
