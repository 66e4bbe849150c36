package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	redismock "github.com/go-redis/redismock/v8"
)

func newMockClient() (*Client, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return &Client{rdb: db}, mock
}

// TestHSet_Success verifies that HSet writes the hash on first attempt.
func TestHSet_Success(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectHSet("h", "title", "x", "min_price", "1").SetVal(2)

	if err := client.HSet(context.Background(), "h", "title", "x", "min_price", "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestHSet_RetryOnError ensures HSet retries on a transient Redis error.
func TestHSet_RetryOnError(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectHSet("h", "title", "x").SetErr(errors.New("connection reset"))
	mock.ExpectHSet("h", "title", "x").SetVal(1)

	if err := client.HSet(context.Background(), "h", "title", "x"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestHSetNX(t *testing.T) {
	client, mock := newMockClient()

	mock.ExpectHSetNX("h", "id", "abc").SetVal(true)
	mock.ExpectHSetNX("h", "id", "def").SetVal(false)

	set, err := client.HSetNX(context.Background(), "h", "id", "abc")
	if err != nil || !set {
		t.Fatalf("first HSetNX = %v, %v; want true, nil", set, err)
	}
	set, err = client.HSetNX(context.Background(), "h", "id", "def")
	if err != nil || set {
		t.Fatalf("second HSetNX = %v, %v; want false, nil", set, err)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, _ := newMockClient()

	for i := 0; i < breakerThreshold; i++ {
		client.checkCircuitBreaker(errors.New("down"))
	}
	if atomic.LoadInt32(&client.state) != stateOpen {
		t.Fatal("breaker should be open")
	}
	if _, err := client.HGetAll(context.Background(), "h"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("err = %v; want ErrCircuitBreakerOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	client, mock := newMockClient()

	for i := 0; i < breakerThreshold; i++ {
		client.checkCircuitBreaker(errors.New("down"))
	}
	atomic.StoreInt64(&client.lastFailure, time.Now().Add(-2*breakerCooldown).Unix())

	mock.ExpectHGetAll("h").SetVal(map[string]string{"title": "x"})
	if _, err := client.HGetAll(context.Background(), "h"); err != nil {
		t.Fatalf("probe should pass, got %v", err)
	}
	if atomic.LoadInt32(&client.state) != stateClosed {
		t.Error("successful probe should close the breaker")
	}
}

func TestCheckCircuitBreaker_IgnoresNil(t *testing.T) {
	client, _ := newMockClient()
	for i := 0; i < breakerThreshold+1; i++ {
		client.checkCircuitBreaker(redis.Nil)
	}
	if atomic.LoadInt32(&client.state) != stateClosed {
		t.Error("redis.Nil is not a failure")
	}
}
