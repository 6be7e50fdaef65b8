package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openmined/s3ops/internal/gateway"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.backoff(3))
	assert.Equal(t, 5*time.Second, p.backoff(10))
}

func TestWithRetry(t *testing.T) {
	transport := gateway.NewError(gateway.KindTransport, "PutObject", "b", "k", errors.New("connection reset by peer"))
	notFound := gateway.NewError(gateway.KindNotFound, "GetObject", "b", "k", errors.New("NoSuchKey"))
	boom := errors.New("boom")

	tests := []struct {
		name     string
		errs     []error
		wantErr  error
		attempts int
	}{
		{name: "success", errs: []error{nil}, attempts: 1},
		{name: "recovers", errs: []error{transport, transport, nil}, attempts: 3},
		{name: "exhausted", errs: []error{transport, transport, transport, nil}, wantErr: transport, attempts: 3},
		{name: "permanent", errs: []error{notFound, nil}, wantErr: notFound, attempts: 1},
		{name: "unclassified", errs: []error{boom, nil}, wantErr: boom, attempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, gateway.NewMemoryGateway())
			attempts := 0
			err := e.withRetry(context.Background(), "call", func() error {
				err := tt.errs[attempts]
				attempts++
				return err
			})
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.attempts, attempts)
		})
	}
}

func TestWithRetry_StopsWaitingWhenContextDone(t *testing.T) {
	e := newTestEngine(t, gateway.NewMemoryGateway(), WithRetryPolicy(RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Hour,
		Multiplier:     2,
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	start := time.Now()
	err := e.withRetry(ctx, "call", func() error {
		attempts++
		return gateway.ErrTransport
	})
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}
