package amqp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestExponentialBackoffIsCapped(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt, d := range want {
		if got := exponentialBackoff(attempt); got != d {
			t.Errorf("attempt %d: backoff %v, want %v", attempt, got, d)
		}
	}
	for _, attempt := range []int{5, 9, 40} {
		if got := exponentialBackoff(attempt); got != maxBackoff {
			t.Errorf("attempt %d: backoff %v, want cap %v", attempt, got, maxBackoff)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	retryable := []string{"connection refused", "connection closed", "unexpected EOF", "broken pipe", "use of closed network connection"}
	for _, msg := range retryable {
		if !isConnectionError(errors.New(msg)) {
			t.Errorf("%q should be treated as a connection error", msg)
		}
	}
	for _, err := range []error{nil, errors.New("invalid input"), ErrCircuitOpen} {
		if isConnectionError(err) {
			t.Errorf("%v should not be treated as a connection error", err)
		}
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	c := &Client{exchangeName: "ledger", queueName: "ledger_changed"}

	if c.isCircuitOpen() {
		t.Fatal("a new client starts closed")
	}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatalf("opened after %d failures, threshold is %d", maxFailures-1, maxFailures)
	}
	c.recordFailure()
	if !c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateOpen {
		t.Fatal("threshold reached, circuit must be open")
	}

	// Within the open window nothing gets through.
	c.lastFailure = time.Now()
	if !c.isCircuitOpen() {
		t.Fatal("circuit closed before the open timeout elapsed")
	}

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatal("after the open timeout a trial call must be allowed")
	}

	c.recordSuccess()
	if atomic.LoadInt32(&c.state) != StateClosed || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("a success must close the circuit and reset failures")
	}
}

func TestClient_PublishLedgerChanged_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "ledger", queueName: "ledger_changed"}
	msg := NewLedgerChangedMessage("alice", RecordTransaction, "tx-1", OpCreate)

	t.Run("publish fails when circuit is open", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateOpen)
		client.lastFailure = time.Now()

		err := client.PublishLedgerChanged(context.Background(), msg)
		if err == nil {
			t.Fatal("PublishLedgerChanged should fail when circuit is open")
		}
		if !errors.Is(err, ErrCircuitOpen) || !strings.Contains(err.Error(), "circuit breaker is open") {
			t.Errorf("Error should mention circuit breaker, got: %v", err)
		}
	})

	t.Run("publish respects context cancellation", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateClosed)
		atomic.StoreInt64(&client.failureCount, 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := client.PublishLedgerChanged(ctx, msg)
		if err != context.Canceled {
			t.Errorf("PublishLedgerChanged should return context.Canceled when context is cancelled, got: %v", err)
		}
	})

	t.Run("half-open failure reopens circuit", func(t *testing.T) {
		atomic.StoreInt32(&client.state, StateHalfOpen)
		atomic.StoreInt64(&client.failureCount, 0)

		client.recordFailure()
		if atomic.LoadInt32(&client.state) != StateOpen {
			t.Error("a failure while half-open should reopen the circuit")
		}
	})
}

// unreachableURL points at a local port nothing listens on.
func unreachableURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return "amqp://guest:guest@" + addr + "/"
}

func TestPublishWithBrokerDownDoesNotBackOff(t *testing.T) {
	client := &Client{url: unreachableURL(t), exchangeName: "ledger", queueName: "ledger_changed"}
	msg := NewLedgerChangedMessage("alice", RecordTransaction, "tx-1", OpCreate)

	start := time.Now()
	err := client.PublishLedgerChanged(context.Background(), msg)
	if err == nil {
		t.Fatal("PublishLedgerChanged should fail without a broker")
	}
	// The first backoff step is one second.
	if elapsed := time.Since(start); elapsed >= exponentialBackoff(0) {
		t.Errorf("publish waited %v, expected a single attempt", elapsed)
	}
	if got := atomic.LoadInt64(&client.failureCount); got != 1 {
		t.Errorf("failureCount = %d, want 1", got)
	}

	for i := 1; i < maxFailures; i++ {
		_ = client.PublishLedgerChanged(context.Background(), msg)
	}
	if err := client.PublishLedgerChanged(context.Background(), msg); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected the breaker to open after %d failures, got %v", maxFailures, err)
	}
}

func TestReconnectBackoffReleasesLock(t *testing.T) {
	client := &Client{url: unreachableURL(t), exchangeName: "ledger", queueName: "ledger_changed"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		_, err := client.ensureChannel(ctx, maxReconnectAttempts)
		result <- err
	}()

	time.Sleep(100 * time.Millisecond)
	closed := make(chan struct{})
	go func() {
		client.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Close blocked while reconnect was backing off")
	}

	cancel()
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ensureChannel = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ensureChannel ignored cancellation during backoff")
	}
}

func TestNewLedgerChangedMessage(t *testing.T) {
	msg := NewLedgerChangedMessage("alice", RecordBudget, "b-1", OpUpdate)

	if msg.OwnerID != "alice" || msg.Record != RecordBudget || msg.RecordID != "b-1" || msg.Op != OpUpdate {
		t.Errorf("NewLedgerChangedMessage() = %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("NewLedgerChangedMessage() Timestamp should not be zero")
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("NewLedgerChangedMessage() Timestamp should be recent")
	}
}

func TestLedgerChangedMessage_JSON(t *testing.T) {
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &LedgerChangedMessage{
		OwnerID:   "alice",
		Record:    RecordTransaction,
		RecordID:  "tx-1",
		Op:        OpDelete,
		Timestamp: timestamp,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.Contains(string(jsonBytes), `"ownerId":"alice"`) {
		t.Errorf("unexpected wire format %s", jsonBytes)
	}

	parsed, err := LedgerChangedMessageFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("LedgerChangedMessageFromJSON() error = %v", err)
	}
	if parsed.OwnerID != msg.OwnerID || parsed.Op != msg.Op || parsed.RecordID != msg.RecordID {
		t.Errorf("Parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestLedgerChangedMessage_InvalidJSON(t *testing.T) {
	cases := map[string][]byte{
		"malformed":     []byte(`{"ownerId": 12`),
		"missing owner": []byte(`{"record":"budget","op":"update"}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LedgerChangedMessageFromJSON(body); err == nil {
				t.Error("LedgerChangedMessageFromJSON() should fail")
			}
		})
	}
}
