// Package geyser owns the long-lived gRPC subscription to the transaction
// stream: connect, subscribe, receive, reconnect with backoff.
package geyser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"wallet-tracker/internal/codec"
	"wallet-tracker/internal/observability"
	"wallet-tracker/internal/solana"
)

// ErrRetriesExhausted is returned by Run after the configured maximum
// reconnect attempts failed in a row. The subscriber will not reconnect
// again; the owner must restart it.
var ErrRetriesExhausted = errors.New("geyser: reconnect attempts exhausted")

// State is the subscriber lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateReceiving
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Default configuration values.
const (
	DefaultQueueSize   = 1024
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxDelay    = 60 * time.Second
	DefaultMaxAttempts = 5

	maxRecvMsgSize = 1 << 30 // geyser blocks can be large
)

// Config configures a Subscriber.
type Config struct {
	// Endpoint is the geyser gRPC endpoint. http:// endpoints dial in
	// plaintext, everything else uses TLS.
	Endpoint string
	// APIKey, when set, is attached as x-token metadata.
	APIKey string
	// QueueSize bounds the frame queue between the receive loop and the
	// dispatcher. A full queue blocks the receive loop.
	QueueSize int
	// BaseDelay is the initial reconnect delay.
	BaseDelay time.Duration
	// MaxDelay caps the reconnect delay.
	MaxDelay time.Duration
	// MaxAttempts is the number of consecutive failed reconnects tolerated
	// before the subscriber stops permanently.
	MaxAttempts int
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Metrics is optional.
	Metrics *observability.Metrics
}

// Subscriber maintains the subscription and feeds decoded frames into a
// bounded queue. One Subscriber per watched-address set.
type Subscriber struct {
	cfg     Config
	logger  *log.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	watchlist []string
	stream    pb.Geyser_SubscribeClient
	cancel    context.CancelFunc

	// sendMu serializes writes to the stream. grpc.ClientStream allows at
	// most one goroutine in SendMsg at a time, and both the receive loop
	// (pong replies) and SetWatchlist (resubscribe) write.
	sendMu sync.Mutex

	frames  chan codec.Value
	stopped atomic.Bool
	state   atomic.Int32

	errMu  sync.Mutex
	runErr error
}

// NewSubscriber creates a subscriber. The initial watchlist may be empty;
// the subscription then idles on a keep-alive ping.
func NewSubscriber(cfg Config, watchlist []string) (*Subscriber, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("geyser: endpoint is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	for _, addr := range watchlist {
		if err := solana.ValidatePubkey(addr); err != nil {
			return nil, fmt.Errorf("geyser: watchlist: %w", err)
		}
	}

	s := &Subscriber{
		cfg:       cfg,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		watchlist: append([]string(nil), watchlist...),
		frames:    make(chan codec.Value, cfg.QueueSize),
	}
	s.state.Store(int32(StateDisconnected))
	return s, nil
}

// Frames returns the bounded frame queue. It is closed when Run exits.
func (s *Subscriber) Frames() <-chan codec.Value { return s.frames }

// State returns the current lifecycle state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// Err returns the fatal error recorded by Run, if any.
func (s *Subscriber) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.runErr
}

func (s *Subscriber) setErr(err error) {
	s.errMu.Lock()
	s.runErr = err
	s.errMu.Unlock()
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// Watchlist returns a copy of the current watchlist.
func (s *Subscriber) Watchlist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.watchlist...)
}

// SetWatchlist replaces the watched addresses and resubscribes on the live
// stream. If the stream is down, the next reconnect picks up the new filter.
func (s *Subscriber) SetWatchlist(addrs []string) error {
	for _, addr := range addrs {
		if err := solana.ValidatePubkey(addr); err != nil {
			return fmt.Errorf("geyser: watchlist: %w", err)
		}
	}

	s.mu.Lock()
	s.watchlist = append([]string(nil), addrs...)
	stream := s.stream
	req := BuildSubscribeRequest(s.watchlist)
	s.mu.Unlock()

	if stream != nil {
		if err := s.send(stream, req); err != nil {
			// Reconnect rebuilds the filter from the stored watchlist.
			s.logger.Printf("[geyser] resubscribe failed, deferring to reconnect: %v", err)
		} else {
			s.logger.Printf("[geyser] watchlist updated: %d addresses", len(addrs))
		}
	}
	return nil
}

// send writes one request to the stream under the send lock.
func (s *Subscriber) send(stream pb.Geyser_SubscribeClient, req *pb.SubscribeRequest) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return stream.Send(req)
}

// Stop terminates the subscriber from any state. It is idempotent and safe
// to call concurrently with an in-flight receive.
func (s *Subscriber) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the connect/subscribe/receive/reconnect loop until Stop is
// called, ctx is cancelled, or the reconnect budget is exhausted. The frame
// queue is closed on exit.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.frames)
	defer s.setState(StateStopped)

	attempt := 0
	for {
		if s.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		err := s.connectAndStream(ctx, func() { attempt = 0 })
		if err == nil || s.stopped.Load() || ctx.Err() != nil {
			return nil
		}

		attempt++
		if s.metrics != nil {
			s.metrics.GeyserReconnects.Inc()
		}
		if attempt > s.cfg.MaxAttempts {
			fatal := fmt.Errorf("%w: %d attempts, last error: %v", ErrRetriesExhausted, s.cfg.MaxAttempts, err)
			s.setErr(fatal)
			s.logger.Printf("[geyser] %v", fatal)
			return fatal
		}

		delay := backoffDelay(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)
		s.setState(StateReconnecting)
		s.logger.Printf("[geyser] connection lost (%v), reconnecting in %v (attempt %d/%d)",
			err, delay, attempt, s.cfg.MaxAttempts)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

// connectAndStream performs one connect/subscribe/receive cycle. It returns
// nil only when stopping; any other exit is a reconnectable error.
func (s *Subscriber) connectAndStream(ctx context.Context, onSubscribed func()) error {
	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.APIKey != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "x-token", s.cfg.APIKey)
	}

	client := pb.NewGeyserClient(conn)
	stream, err := client.Subscribe(streamCtx)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	if err := s.send(stream, BuildSubscribeRequest(s.Watchlist())); err != nil {
		return fmt.Errorf("send subscribe request: %w", err)
	}

	s.mu.Lock()
	s.stream = stream
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stream = nil
		s.cancel = nil
		s.mu.Unlock()
	}()

	// A Stop issued before cancel was stored must not leave Recv blocked.
	if s.stopped.Load() {
		return nil
	}

	s.setState(StateSubscribed)
	onSubscribed()
	s.logger.Printf("[geyser] subscribed (%d watched addresses)", len(s.Watchlist()))

	s.setState(StateReceiving)
	for {
		update, err := stream.Recv()
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			return fmt.Errorf("recv: %w", err)
		}

		// Suspension point: post-receive.
		if s.stopped.Load() {
			return nil
		}

		if ping := update.GetPing(); ping != nil {
			if s.metrics != nil {
				s.metrics.GeyserPings.Inc()
			}
			pong := &pb.SubscribeRequest{Ping: &pb.SubscribeRequestPing{Id: keepAlivePingID}}
			if err := s.send(stream, pong); err != nil {
				return fmt.Errorf("send pong: %w", err)
			}
		}
		if update.GetPong() != nil {
			continue
		}

		frame := codec.FromProto(update)
		if s.metrics != nil {
			s.metrics.GeyserFrames.Inc()
		}

		// Suspension point: pre-enqueue. A full queue blocks here; this is
		// the single flow-control point between ingestion and processing.
		select {
		case s.frames <- frame:
			if s.metrics != nil {
				s.metrics.QueueDepth.Set(float64(len(s.frames)))
			}
		case <-streamCtx.Done():
			return nil
		}
	}
}

// dial opens the gRPC channel. http:// endpoints dial plaintext; https://
// and bare host:port endpoints use TLS with default port 443.
func (s *Subscriber) dial() (*grpc.ClientConn, error) {
	target, plaintext, err := parseEndpoint(s.cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	creds := grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if plaintext {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	return grpc.NewClient(target,
		creds,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxRecvMsgSize)),
	)
}

func parseEndpoint(endpoint string) (target string, plaintext bool, err error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		plaintext = u.Scheme == "http"
		host := u.Host
		if u.Port() == "" {
			port := "443"
			if plaintext {
				port = "80"
			}
			host = u.Hostname() + ":" + port
		}
		return host, plaintext, nil
	}

	if strings.Contains(endpoint, ":") {
		return endpoint, false, nil
	}
	return endpoint + ":443", false, nil
}

// backoffDelay computes min(base * 2^(attempt-1), max) for attempt >= 1.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		return max
	}
	d := base << uint(shift)
	if d > max || d <= 0 {
		return max
	}
	return d
}
