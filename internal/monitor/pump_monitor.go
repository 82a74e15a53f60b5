package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/observability"
	"wallet-tracker/internal/pubsub"
)

// ErrRetriesExhausted is returned by Run after the reconnect budget is
// spent. The monitor will not reconnect on its own afterwards.
var ErrRetriesExhausted = errors.New("monitor: reconnect attempts exhausted")

const (
	defaultBaseDelay   = 5 * time.Second
	defaultMaxDelay    = 60 * time.Second
	defaultMaxAttempts = 5
	defaultCommitment  = "confirmed"

	handshakeTimeout = 10 * time.Second
	pingInterval     = 20 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
)

// Config configures the new-token monitor.
type Config struct {
	// RPCEndpoint is the http(s) RPC endpoint; it is rewritten to the
	// corresponding ws(s) URL.
	RPCEndpoint string

	// Channel is the list key that receives detected mint addresses.
	Channel string

	// ProgramID defaults to the pump.fun program.
	ProgramID string

	// Commitment defaults to confirmed.
	Commitment string

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	Logger *log.Logger

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Monitor watches block notifications for the pump.fun program over a
// WebSocket subscription and pushes newly created mint addresses onto a
// list for downstream consumers.
type Monitor struct {
	cfg       Config
	publisher pubsub.Publisher
	logger    *log.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped atomic.Bool

	subscriptionID atomic.Int64
}

// New validates the configuration and creates a monitor.
func New(publisher pubsub.Publisher, cfg Config) (*Monitor, error) {
	if publisher == nil {
		return nil, errors.New("monitor: publisher is required")
	}
	if cfg.RPCEndpoint == "" {
		return nil, errors.New("monitor: rpc endpoint is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("monitor: channel is required")
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = domain.PumpFunProgramID
	}
	if cfg.Commitment == "" {
		cfg.Commitment = defaultCommitment
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{cfg: cfg, publisher: publisher, logger: logger}, nil
}

// SubscriptionID returns the id of the current block subscription, or 0
// before the confirmation arrives.
func (m *Monitor) SubscriptionID() int64 {
	return m.subscriptionID.Load()
}

// Run connects, subscribes and consumes notifications until Stop is
// called or the reconnect budget is exhausted.
func (m *Monitor) Run(ctx context.Context) error {
	attempt := 0
	for {
		if m.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		err := m.connectAndStream(ctx, func() { attempt = 0 })
		if m.stopped.Load() || ctx.Err() != nil {
			return nil
		}
		m.logger.Printf("monitor: connection lost: %v", err)

		attempt++
		if attempt > m.cfg.MaxAttempts {
			m.logger.Printf("monitor: giving up after %d attempts", m.cfg.MaxAttempts)
			return ErrRetriesExhausted
		}
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.MonitorReconnects.Inc()
		}

		delay := backoffDelay(attempt, m.cfg.BaseDelay, m.cfg.MaxDelay)
		m.logger.Printf("monitor: reconnecting in %s (attempt %d/%d)", delay, attempt, m.cfg.MaxAttempts)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Stop closes the connection and prevents further reconnects. Idempotent
// and safe to call concurrently with Run.
func (m *Monitor) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()
}

func (m *Monitor) connectAndStream(ctx context.Context, onSubscribed func()) error {
	wsEndpoint := wsURL(m.cfg.RPCEndpoint)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsEndpoint, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	if m.stopped.Load() {
		conn.Close()
		return nil
	}
	defer conn.Close()

	m.logger.Printf("monitor: connected to %s", wsEndpoint)

	if err := m.subscribeBlocks(conn); err != nil {
		return err
	}
	onSubscribed()

	connDone := make(chan struct{})
	defer close(connDone)
	go m.pingLoop(conn, connDone)

	for {
		if m.stopped.Load() {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		if m.stopped.Load() {
			return nil
		}
		m.handleMessage(ctx, data)
	}
}

// subscribeBlocks sends the blockSubscribe request filtered by the
// watched program.
func (m *Monitor) subscribeBlocks(conn *websocket.Conn) error {
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "blockSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentionsAccountOrProgram": m.cfg.ProgramID},
			map[string]interface{}{
				"commitment": m.cfg.Commitment,
				"encoding":   "base64",
			},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	return nil
}

func (m *Monitor) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (m *Monitor) handleMessage(ctx context.Context, data []byte) {
	var msg rpcMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Printf("monitor: malformed message: %v", err)
		return
	}

	if msg.Error != nil {
		m.logger.Printf("monitor: rpc error %d: %s", msg.Error.Code, msg.Error.Message)
		return
	}

	// Subscription confirmation carries the request id and a numeric
	// subscription id.
	if msg.ID != nil && len(msg.Result) > 0 {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err == nil {
			m.subscriptionID.Store(subID)
			m.logger.Printf("monitor: subscribed with id %d", subID)
		}
		return
	}

	if !strings.HasSuffix(msg.Method, "Notification") {
		return
	}

	mint := extractMint(msg.Params)
	if mint == "" {
		return
	}

	if err := m.publisher.PushList(ctx, m.cfg.Channel, mint); err != nil {
		m.logger.Printf("monitor: push mint %s: %v", mint, err)
		return
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.NewMintsDetected.Inc()
	}
	m.logger.Printf("monitor: new pump token detected: %s", mint)
}

// extractMint pulls the mint address out of a parsed account
// notification, returning "" when the notification has none.
func extractMint(params json.RawMessage) string {
	var note struct {
		Result struct {
			Value struct {
				Account struct {
					Data struct {
						Parsed struct {
							Info struct {
								Mint string `json:"mint"`
							} `json:"info"`
						} `json:"parsed"`
					} `json:"data"`
				} `json:"account"`
			} `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(params, &note); err != nil {
		return ""
	}
	return note.Result.Value.Account.Data.Parsed.Info.Mint
}

// wsURL rewrites an http(s) RPC endpoint to its websocket counterpart.
func wsURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 16 {
		return max
	}
	delay := base << shift
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
