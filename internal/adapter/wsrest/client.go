// Package wsrest is a concrete adapter.Adapter: a websocket streaming leg
// for market data and a rate-limited REST leg for order management. It is
// built the way the teacher's exchange.Feed builds its Binance connector —
// exponential-backoff reconnect, ping/pong keepalive — generalized from a
// single trade stream to L2 book updates plus trades, and extended with the
// REST order surface spec §6 requires.
package wsrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/domain"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadDeadline     = 30 * time.Second
	pingInterval            = 15 * time.Second
	initialBackoff          = time.Second
	maxBackoff              = 30 * time.Second
)

// Client streams market data over a websocket and issues REST calls for
// order management. It implements adapter.Adapter.
type Client struct {
	streamURL  string
	restBase   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Config carries the venue endpoints and rate-limit budget.
type Config struct {
	StreamURL        string
	RESTBaseURL      string
	RequestsPerSecond float64
	Burst             int
}

// New constructs a Client against the given venue endpoints.
func New(cfg Config, log zerolog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		streamURL:  cfg.StreamURL,
		restBase:   strings.TrimSuffix(cfg.RESTBaseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		log:        log.With().Str("component", "wsrest").Logger(),
	}
}

// wireEnvelope is the streaming message shape: either an L2 delta or a trade
// print, disambiguated by Type.
type wireEnvelope struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Ts     int64           `json:"ts"`
	Side   string          `json:"side"`
	Price  string          `json:"price"`
	Size   string          `json:"size"`
}

// Subscribe dials the streaming endpoint and forwards L2Update/Trade
// messages until ctx is canceled, reconnecting with exponential backoff on
// any disconnect.
func (c *Client) Subscribe(ctx context.Context, symbols []string, updates chan<- adapter.L2Update, trades chan<- domain.Trade) error {
	if len(symbols) == 0 {
		return fmt.Errorf("wsrest: subscribe requires at least one symbol")
	}

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.consume(ctx, symbols, updates, trades); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("stream disconnected, reconnecting")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (c *Client) consume(ctx context.Context, symbols []string, updates chan<- adapter.L2Update, trades chan<- domain.Trade) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	url := fmt.Sprintf("%s?symbols=%s", c.streamURL, strings.Join(symbols, ","))
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info().Strs("symbols", symbols).Msg("connected market data stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(defaultReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(defaultReadDeadline))
		return nil
	})

	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.keepalive(pingCtx, conn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env wireEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}

		if err := c.dispatch(ctx, env, updates, trades); err != nil {
			c.log.Warn().Err(err).Msg("failed to dispatch stream message")
		}
	}
}

func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn().Err(err).Msg("ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) dispatch(ctx context.Context, env wireEnvelope, updates chan<- adapter.L2Update, trades chan<- domain.Trade) error {
	price, err := decimal.NewFromString(env.Price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", env.Price, err)
	}
	size, err := decimal.NewFromString(env.Size)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", env.Size, err)
	}

	switch env.Type {
	case "l2":
		side := adapter.SideBid
		if strings.EqualFold(env.Side, "ask") {
			side = adapter.SideAsk
		}
		select {
		case updates <- adapter.L2Update{Symbol: env.Symbol, Side: side, Price: price, Size: size, Ts: env.Ts}:
		case <-ctx.Done():
			return ctx.Err()
		}
	case "trade":
		side := domain.Buy
		if strings.EqualFold(env.Side, "sell") {
			side = domain.Sell
		}
		select {
		case trades <- domain.Trade{Ts: env.Ts, Symbol: env.Symbol, Side: side, Price: price, Size: size}:
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		return fmt.Errorf("unknown stream message type %q", env.Type)
	}
	return nil
}

// RequestSnapshot fetches a full book snapshot via REST.
func (c *Client) RequestSnapshot(ctx context.Context, symbol string) (adapter.SnapshotResponse, error) {
	var out struct {
		Ts   int64 `json:"ts"`
		Bids []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"bids"`
		Asks []struct {
			Price string `json:"price"`
			Size  string `json:"size"`
		} `json:"asks"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/book/%s", symbol), &out); err != nil {
		return adapter.SnapshotResponse{}, err
	}

	resp := adapter.SnapshotResponse{Symbol: symbol, Ts: out.Ts}
	for _, b := range out.Bids {
		lvl, err := toLevel(b.Price, b.Size)
		if err != nil {
			return adapter.SnapshotResponse{}, err
		}
		resp.Bids = append(resp.Bids, lvl)
	}
	for _, a := range out.Asks {
		lvl, err := toLevel(a.Price, a.Size)
		if err != nil {
			return adapter.SnapshotResponse{}, err
		}
		resp.Asks = append(resp.Asks, lvl)
	}
	return resp, nil
}

func toLevel(price, size string) (domain.Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return domain.Level{}, err
	}
	s, err := decimal.NewFromString(size)
	if err != nil {
		return domain.Level{}, err
	}
	return domain.Level{Price: p, Size: s}, nil
}

// PlaceOrder submits an order, keyed on req.Nonce for idempotency.
func (c *Client) PlaceOrder(ctx context.Context, req adapter.PlaceRequest) (adapter.PlaceResult, error) {
	var out struct {
		OrderID string `json:"order_id"`
	}
	body := map[string]any{
		"nonce":     req.Nonce,
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"kind":      req.Kind.String(),
		"price":     req.Price.String(),
		"size":      req.Size.String(),
		"post_only": req.PostOnly,
	}
	if err := c.postJSON(ctx, "/orders", body, &out); err != nil {
		return adapter.PlaceResult{}, err
	}
	return adapter.PlaceResult{OrderID: out.OrderID}, nil
}

// CancelOrder issues a best-effort venue cancel.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.postJSON(ctx, fmt.Sprintf("/orders/%s/cancel", orderID), nil, nil)
}

// GetOrder reconciles the current state of an order, used by the executor
// on status-poll timeout.
func (c *Client) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var out struct {
		ID           string `json:"id"`
		Symbol       string `json:"symbol"`
		Side         string `json:"side"`
		Status       string `json:"status"`
		Price        string `json:"price"`
		Size         string `json:"size"`
		FilledSize   string `json:"filled_size"`
		AvgFillPrice string `json:"avg_fill_price"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/orders/%s", orderID), &out); err != nil {
		return domain.Order{}, err
	}

	price, _ := decimal.NewFromString(out.Price)
	size, _ := decimal.NewFromString(out.Size)
	filled, _ := decimal.NewFromString(out.FilledSize)
	avg, _ := decimal.NewFromString(out.AvgFillPrice)

	return domain.Order{
		ID:           out.ID,
		Symbol:       out.Symbol,
		Side:         domain.Side(strings.ToUpper(out.Side)),
		Price:        price,
		Size:         size,
		FilledSize:   filled,
		AvgFillPrice: avg,
		Status:       parseStatus(out.Status),
	}, nil
}

// GetFills returns all fills recorded against an order.
func (c *Client) GetFills(ctx context.Context, orderID string) ([]adapter.Fill, error) {
	var out []struct {
		OrderID  string `json:"order_id"`
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Price    string `json:"price"`
		Size     string `json:"size"`
		FeeBps   float64 `json:"fee_bps"`
		IsMaker  bool    `json:"is_maker"`
		Sequence int64   `json:"sequence"`
		Ts       int64   `json:"ts"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/orders/%s/fills", orderID), &out); err != nil {
		return nil, err
	}

	fills := make([]adapter.Fill, 0, len(out))
	for _, f := range out {
		price, _ := decimal.NewFromString(f.Price)
		size, _ := decimal.NewFromString(f.Size)
		fills = append(fills, adapter.Fill{
			OrderID:  f.OrderID,
			Symbol:   f.Symbol,
			Side:     domain.Side(strings.ToUpper(f.Side)),
			Price:    price,
			Size:     size,
			FeeBps:   f.FeeBps,
			IsMaker:  f.IsMaker,
			Sequence: f.Sequence,
			Ts:       f.Ts,
		})
	}
	return fills, nil
}

func parseStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "SUBMITTED":
		return domain.StatusSubmitted
	case "PARTIALLY_FILLED":
		return domain.StatusPartiallyFilled
	case "FILLED":
		return domain.StatusFilled
	case "CANCELED":
		return domain.StatusCanceled
	case "REJECTED":
		return domain.StatusRejected
	case "EXPIRED":
		return domain.StatusExpired
	default:
		return domain.StatusCreated
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restBase+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restBase+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wsrest: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("wsrest: %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ adapter.Adapter = (*Client)(nil)
