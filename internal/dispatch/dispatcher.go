package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"wallet-tracker/internal/codec"
	"wallet-tracker/internal/observability"
	"wallet-tracker/internal/parser"
	"wallet-tracker/internal/pubsub"
	"wallet-tracker/internal/storage"
)

// Parse outcome labels.
const (
	outcomePublished = "published"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

// Config controls dispatcher behavior.
type Config struct {
	// Channel is the pub/sub channel that receives serialized events.
	Channel string

	// ParserDeps are handed to every per-transaction parser.
	ParserDeps parser.Deps

	// Archive, when set, receives a copy of every published event.
	// Archive failures are logged, never fatal.
	Archive storage.TxEventStore

	Logger *log.Logger

	// Metrics is optional.
	Metrics *observability.Metrics
}

// Dispatcher drains decoded frames from the subscription client, filters
// for mint-initialization transactions, parses them and publishes the
// resulting events. One faulty frame never stops the loop.
type Dispatcher struct {
	frames    <-chan codec.Value
	publisher pubsub.Publisher
	cfg       Config
	logger    *log.Logger
}

// New creates a dispatcher over a frame channel and a publish sink.
func New(frames <-chan codec.Value, publisher pubsub.Publisher, cfg Config) (*Dispatcher, error) {
	if frames == nil {
		return nil, errors.New("dispatch: frames channel is required")
	}
	if publisher == nil {
		return nil, errors.New("dispatch: publisher is required")
	}
	if cfg.Channel == "" {
		return nil, errors.New("dispatch: channel name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		frames:    frames,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run processes frames until the channel closes or the context is
// cancelled. Each dequeued frame is fully handled before the next one.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-d.frames:
			if !ok {
				d.logger.Printf("dispatcher: frame channel closed, exiting")
				return nil
			}
			if d.cfg.Metrics != nil {
				d.cfg.Metrics.FramesDispatched.Inc()
				d.cfg.Metrics.QueueDepth.Set(float64(len(d.frames)))
			}
			d.handle(ctx, frame)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, frame codec.Value) {
	if frame.Has("ping") || frame.Has("pong") {
		d.logger.Printf("dispatcher: keep-alive frame")
		return
	}
	if !frame.Has("filters") || !frame.Has("transaction") {
		return
	}
	if !d.hasMintInitLog(frame) {
		return
	}

	envelope, err := envelopeFromUpdate(frame)
	if err != nil {
		d.countOutcome(outcomeError)
		d.logger.Printf("dispatcher: malformed transaction frame: %v", err)
		return
	}

	p := parser.New(envelope, d.cfg.ParserDeps)
	event, err := p.Parse(ctx)
	if err != nil {
		if errors.Is(err, parser.ErrNotSwapTransaction) {
			d.countOutcome(outcomeSkipped)
			return
		}
		d.countOutcome(outcomeError)
		d.logger.Printf("dispatcher: parse failed: %v", err)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.countOutcome(outcomeError)
		d.logger.Printf("dispatcher: marshal event %s: %v", event.Signature, err)
		return
	}

	start := time.Now()
	if err := d.publisher.Publish(ctx, d.cfg.Channel, payload); err != nil {
		d.countOutcome(outcomeError)
		d.logger.Printf("dispatcher: publish event %s: %v", event.Signature, err)
		return
	}
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.PublishLatency.Observe(time.Since(start).Seconds())
		d.cfg.Metrics.EventsPublished.Inc()
	}
	d.countOutcome(outcomePublished)
	d.logger.Printf("dispatcher: published %s event %s mint=%s", event.TxType, event.Signature, event.Mint)

	if d.cfg.Archive != nil {
		if err := d.cfg.Archive.Insert(ctx, event); err != nil {
			d.logger.Printf("dispatcher: archive event %s: %v", event.Signature, err)
		}
	}
}

// hasMintInitLog reports whether any log message of the transaction
// mentions a mint initialization.
func (d *Dispatcher) hasMintInitLog(frame codec.Value) bool {
	logs, err := frame.At("transaction", "transaction", "meta", "log_messages")
	if err != nil {
		return false
	}
	messages, err := logs.Strings()
	if err != nil {
		return false
	}
	for _, msg := range messages {
		if strings.Contains(msg, parser.MintInitLogMarker) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) countOutcome(outcome string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ParseResults.WithLabelValues(outcome).Inc()
	}
}

// envelopeFromUpdate flattens a decoded stream update into the shape the
// parser consumes: signatures, account keys, block time and the balance
// metadata side by side.
func envelopeFromUpdate(frame codec.Value) (codec.Value, error) {
	info, err := frame.At("transaction", "transaction")
	if err != nil {
		return codec.Value{}, fmt.Errorf("transaction info: %w", err)
	}

	inner, err := info.Get("transaction")
	if err != nil {
		return codec.Value{}, fmt.Errorf("inner transaction: %w", err)
	}
	signatures, err := inner.Get("signatures")
	if err != nil {
		return codec.Value{}, fmt.Errorf("signatures: %w", err)
	}
	accountKeys, err := inner.At("message", "account_keys")
	if err != nil {
		return codec.Value{}, fmt.Errorf("account keys: %w", err)
	}
	meta, err := info.Get("meta")
	if err != nil {
		return codec.Value{}, fmt.Errorf("meta: %w", err)
	}

	// The stream carries no block time; the update's creation timestamp
	// is the closest available approximation.
	blockTime := codec.Int(0)
	if seconds, err := frame.At("created_at", "seconds"); err == nil {
		blockTime = seconds
	}

	return codec.Map(map[string]codec.Value{
		"signatures":   signatures,
		"account_keys": accountKeys,
		"block_time":   blockTime,
		"meta":         meta,
	}), nil
}
