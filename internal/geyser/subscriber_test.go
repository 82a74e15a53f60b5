package geyser

import (
	"context"
	"net"
	"testing"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestBackoffDelay(t *testing.T) {
	base := 5 * time.Second
	max := 60 * time.Second

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second, // capped from 80s
	}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, want[attempt-1], backoffDelay(attempt, base, max), "attempt %d", attempt)
	}

	// Stays capped indefinitely and never overflows.
	assert.Equal(t, max, backoffDelay(50, base, max))
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		in        string
		target    string
		plaintext bool
	}{
		{"https://grpc.example.com", "grpc.example.com:443", false},
		{"https://grpc.example.com:10000", "grpc.example.com:10000", false},
		{"http://127.0.0.1:4003", "127.0.0.1:4003", true},
		{"grpc.example.com:443", "grpc.example.com:443", false},
		{"grpc.example.com", "grpc.example.com:443", false},
	}
	for _, c := range cases {
		target, plaintext, err := parseEndpoint(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.target, target, c.in)
		assert.Equal(t, c.plaintext, plaintext, c.in)
	}
}

// fakeGeyser serves a scripted sequence of updates per Subscribe call.
type fakeGeyser struct {
	pb.UnimplementedGeyserServer
	requests chan *pb.SubscribeRequest
	updates  []*pb.SubscribeUpdate
	hold     chan struct{} // closed to release the stream
}

func (f *fakeGeyser) Subscribe(stream pb.Geyser_SubscribeServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	select {
	case f.requests <- req:
	default:
	}
	for _, u := range f.updates {
		if err := stream.Send(u); err != nil {
			return err
		}
	}
	select {
	case <-f.hold:
	case <-stream.Context().Done():
	}
	return nil
}

func startFakeGeyser(t *testing.T, f *fakeGeyser) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	pb.RegisterGeyserServer(srv, f)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return "http://" + lis.Addr().String()
}

func TestSubscriber_ReceivesAndDecodesFrames(t *testing.T) {
	fake := &fakeGeyser{
		requests: make(chan *pb.SubscribeRequest, 1),
		hold:     make(chan struct{}),
		updates: []*pb.SubscribeUpdate{
			{
				Filters: []string{TransactionFilterName},
				UpdateOneof: &pb.SubscribeUpdate_Transaction{
					Transaction: &pb.SubscribeUpdateTransaction{
						Slot: 42,
						Transaction: &pb.SubscribeUpdateTransactionInfo{
							Meta: &pb.TransactionStatusMeta{
								LogMessages: []string{"Program log: Instruction: InitializeMint2"},
							},
						},
					},
				},
			},
		},
	}
	endpoint := startFakeGeyser(t, fake)

	sub, err := NewSubscriber(Config{
		Endpoint:  endpoint,
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	}, []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- sub.Run(ctx) }()

	// The server saw the transaction filter, not a ping.
	select {
	case req := <-fake.requests:
		require.Contains(t, req.Transactions, TransactionFilterName)
	case <-ctx.Done():
		t.Fatal("no subscribe request received")
	}

	select {
	case frame, ok := <-sub.Frames():
		require.True(t, ok)
		assert.True(t, frame.Has("transaction"))
		logs, err := frame.At("transaction", "transaction", "meta", "log_messages")
		require.NoError(t, err)
		msgs, err := logs.Strings()
		require.NoError(t, err)
		assert.Contains(t, msgs[0], "InitializeMint2")
	case <-ctx.Done():
		t.Fatal("no frame received")
	}

	sub.Stop()
	sub.Stop() // idempotent

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not exit after Stop")
	}
	assert.Equal(t, StateStopped, sub.State())

	// Queue is closed on exit.
	_, open := <-sub.Frames()
	assert.False(t, open)
}

// pingingGeyser floods the client with server pings, forcing pong replies
// from the receive loop, then delivers one transaction update.
type pingingGeyser struct {
	pb.UnimplementedGeyserServer
	pings int
	final *pb.SubscribeUpdate
}

func (f *pingingGeyser) Subscribe(stream pb.Geyser_SubscribeServer) error {
	if _, err := stream.Recv(); err != nil {
		return err
	}
	// Drain pongs and resubscribe requests so flow control never stalls.
	go func() {
		for {
			if _, err := stream.Recv(); err != nil {
				return
			}
		}
	}()

	ping := &pb.SubscribeUpdate{UpdateOneof: &pb.SubscribeUpdate_Ping{Ping: &pb.SubscribeUpdatePing{}}}
	for i := 0; i < f.pings; i++ {
		if err := stream.Send(ping); err != nil {
			return err
		}
	}
	if err := stream.Send(f.final); err != nil {
		return err
	}
	<-stream.Context().Done()
	return nil
}

// Pong replies from the receive loop and resubscriptions from SetWatchlist
// write to the same stream; both must go through the send lock. Run with
// -race: unserialized sends trip the grpc single-sender contract.
func TestSubscriber_SetWatchlistConcurrentWithServerPings(t *testing.T) {
	fake := &pingingGeyser{
		pings: 100,
		final: &pb.SubscribeUpdate{
			Filters: []string{TransactionFilterName},
			UpdateOneof: &pb.SubscribeUpdate_Transaction{
				Transaction: &pb.SubscribeUpdateTransaction{Slot: 7},
			},
		},
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	pb.RegisterGeyserServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	sub, err := NewSubscriber(Config{
		Endpoint:  "http://" + lis.Addr().String(),
		BaseDelay: 10 * time.Millisecond,
		MaxDelay:  50 * time.Millisecond,
	}, []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- sub.Run(ctx) }()

	// Resubscribe repeatedly while pong replies are in flight.
	addrs := []string{"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"}
	for i := 0; i < 50; i++ {
		require.NoError(t, sub.SetWatchlist(addrs))
	}

	select {
	case frame, ok := <-sub.Frames():
		require.True(t, ok)
		assert.True(t, frame.Has("transaction"))
	case <-ctx.Done():
		t.Fatal("stream did not survive concurrent sends")
	}

	sub.Stop()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not exit after Stop")
	}
}

func TestSubscriber_StopsPermanentlyAfterMaxAttempts(t *testing.T) {
	// Nothing listens on this endpoint; every attempt fails.
	sub, err := NewSubscriber(Config{
		Endpoint:    "http://127.0.0.1:1",
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: 3,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = sub.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, sub.Err(), ErrRetriesExhausted)
	assert.Equal(t, StateStopped, sub.State())
}

func TestNewSubscriber_RejectsInvalidWatchAddress(t *testing.T) {
	_, err := NewSubscriber(Config{Endpoint: "http://127.0.0.1:1"}, []string{"bogus"})
	assert.Error(t, err)
}
