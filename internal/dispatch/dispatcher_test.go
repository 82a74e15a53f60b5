package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-tracker/internal/codec"
	"wallet-tracker/internal/domain"
	"wallet-tracker/internal/parser"
)

const (
	testSigner = "9yQ5nhqZTbmbjevLPPSyUFSTGyUcaWW87a6Vc2visK2d"
	testMint   = "8PbodeaosQP19SjYFx855UMqWxH2HynZLdBXmsrbac36"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu        sync.Mutex
	messages  []published
	failNext  bool
	listItems map[string][]string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("publish refused")
	}
	f.messages = append(f.messages, published{channel: channel, payload: payload})
	return nil
}

func (f *fakePublisher) PushList(_ context.Context, key string, values ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listItems == nil {
		f.listItems = make(map[string][]string)
	}
	f.listItems[key] = append(f.listItems[key], values...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

type fakeArchive struct {
	mu     sync.Mutex
	events []*domain.TxEvent
}

func (f *fakeArchive) Insert(_ context.Context, event *domain.TxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func stringList(vals ...string) codec.Value {
	elems := make([]codec.Value, len(vals))
	for i, v := range vals {
		elems[i] = codec.String(v)
	}
	return codec.List(elems)
}

func intList(vals ...int64) codec.Value {
	elems := make([]codec.Value, len(vals))
	for i, v := range vals {
		elems[i] = codec.Int(v)
	}
	return codec.List(elems)
}

func tokenBalanceEntry(owner, mint string) codec.Value {
	return codec.Map(map[string]codec.Value{
		"owner":      codec.String(owner),
		"mint":       codec.String(mint),
		"program_id": codec.String(domain.TokenProgramID),
		"ui_token_amount": codec.Map(map[string]codec.Value{
			"amount":   codec.String("1000"),
			"decimals": codec.Int(6),
		}),
	})
}

// updateFrame builds a decoded stream update the way the subscription
// client produces them.
func updateFrame(signer string, logMessages ...string) codec.Value {
	return codec.Map(map[string]codec.Value{
		"filters":    stringList("pump_subscription"),
		"created_at": codec.Map(map[string]codec.Value{"seconds": codec.Int(1700000000)}),
		"transaction": codec.Map(map[string]codec.Value{
			"slot": codec.Int(123),
			"transaction": codec.Map(map[string]codec.Value{
				"signature": codec.String("frame-signature"),
				"transaction": codec.Map(map[string]codec.Value{
					"signatures": stringList("frame-signature"),
					"message": codec.Map(map[string]codec.Value{
						"account_keys": stringList(signer, "otherAccount"),
					}),
				}),
				"meta": codec.Map(map[string]codec.Value{
					"pre_balances":  intList(5_000_000_000, 1),
					"post_balances": intList(4_000_000_000, 1),
					"post_token_balances": codec.List([]codec.Value{
						tokenBalanceEntry(testSigner, testMint),
					}),
					"log_messages": stringList(logMessages...),
				}),
			}),
		}),
	})
}

func mintInitFrame() codec.Value {
	return updateFrame(testSigner,
		"Program "+domain.PumpFunProgramID+" invoke [1]",
		"Program log: Instruction: InitializeMint2",
	)
}

func newTestDispatcher(t *testing.T, frames chan codec.Value, pub *fakePublisher, archive *fakeArchive) *Dispatcher {
	t.Helper()
	cfg := Config{
		Channel: "new_mint_detail",
		Logger:  log.New(io.Discard, "", 0),
	}
	if archive != nil {
		cfg.Archive = archive
	}
	d, err := New(frames, pub, cfg)
	require.NoError(t, err)
	return d
}

func runDrained(t *testing.T, d *Dispatcher) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit after channel close")
	}
}

func TestDispatcher_PublishesOpenEvent(t *testing.T) {
	frames := make(chan codec.Value, 4)
	pub := &fakePublisher{}
	archive := &fakeArchive{}
	d := newTestDispatcher(t, frames, pub, archive)

	frames <- mintInitFrame()
	close(frames)
	runDrained(t, d)

	msgs := pub.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "new_mint_detail", msgs[0].channel)

	var event domain.TxEvent
	require.NoError(t, json.Unmarshal(msgs[0].payload, &event))
	assert.Equal(t, "frame-signature", event.Signature)
	assert.Equal(t, domain.TxTypeOpenPosition, event.TxType)
	assert.Equal(t, domain.TxDirectionBuy, event.TxDirection)
	assert.Equal(t, uint64(1_000_000_000), event.FromAmount)
	assert.Equal(t, uint64(1000), event.ToAmount)
	assert.Equal(t, testMint, event.Mint)
	assert.Equal(t, int64(1700000000), event.Timestamp)

	require.Len(t, archive.events, 1)
	assert.Equal(t, "frame-signature", archive.events[0].Signature)
}

func TestDispatcher_IgnoresKeepAliveAndUnmatchedFrames(t *testing.T) {
	frames := make(chan codec.Value, 4)
	pub := &fakePublisher{}
	d := newTestDispatcher(t, frames, pub, nil)

	frames <- codec.Map(map[string]codec.Value{
		"ping": codec.Map(map[string]codec.Value{}),
	})
	// Transaction without a mint-init log.
	frames <- updateFrame(testSigner, "Program log: Instruction: Transfer")
	close(frames)
	runDrained(t, d)

	assert.Empty(t, pub.published())
}

func TestDispatcher_SkipsNonSwapAndContinues(t *testing.T) {
	frames := make(chan codec.Value, 4)
	pub := &fakePublisher{}
	d := newTestDispatcher(t, frames, pub, nil)

	// Marker present but the signer holds no matching token balance,
	// so the parser rejects the frame. The next frame must still flow.
	frames <- updateFrame("someoneElseEntirely", "Program log: Instruction: InitializeMint2")
	frames <- mintInitFrame()
	close(frames)
	runDrained(t, d)

	msgs := pub.published()
	require.Len(t, msgs, 1)
}

func TestDispatcher_PublishFailureDoesNotStopLoop(t *testing.T) {
	frames := make(chan codec.Value, 4)
	pub := &fakePublisher{failNext: true}
	d := newTestDispatcher(t, frames, pub, nil)

	frames <- mintInitFrame()
	frames <- mintInitFrame()
	close(frames)
	runDrained(t, d)

	assert.Len(t, pub.published(), 1)
}

func TestDispatcher_StopsOnContextCancel(t *testing.T) {
	frames := make(chan codec.Value)
	pub := &fakePublisher{}
	d := newTestDispatcher(t, frames, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not exit on cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	frames := make(chan codec.Value)

	_, err := New(nil, &fakePublisher{}, Config{Channel: "c"})
	assert.Error(t, err)

	_, err = New(frames, nil, Config{Channel: "c"})
	assert.Error(t, err)

	_, err = New(frames, &fakePublisher{}, Config{})
	assert.Error(t, err)
}

func TestEnvelopeFromUpdate(t *testing.T) {
	envelope, err := envelopeFromUpdate(mintInitFrame())
	require.NoError(t, err)

	p := parser.New(envelope, parser.Deps{Logger: log.New(io.Discard, "", 0)})
	who, err := p.Who()
	require.NoError(t, err)
	assert.Equal(t, testSigner, who)

	blockTime, err := p.BlockTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), blockTime)
}
