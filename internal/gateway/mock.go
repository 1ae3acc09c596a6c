package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/partner-settlement/internal/domain"
)

// Gateway represents the external payout gateway used for withdrawals.
type Gateway interface {
	// SendPayout sends amount to an external destination. reference identifies the payout:
	// a repeated reference returns the original gateway reference ID without paying again.
	// Returns a gateway reference ID and an error if the payout failed.
	SendPayout(ctx context.Context, reference, destination string, amount domain.Money) (string, error)
}

// MockGateway simulates an external payout gateway. It sleeps between MinDelay and
// MaxDelay and fails with probability FailureRate.
type MockGateway struct {
	FailureRate float64
	MinDelay    time.Duration
	MaxDelay    time.Duration

	mu   sync.Mutex
	sent map[string]string
}

// NewMockGateway creates a MockGateway with a 2-5s delay and a 10% failure rate.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		FailureRate: 0.1,
		MinDelay:    2 * time.Second,
		MaxDelay:    5 * time.Second,
	}
}

func (g *MockGateway) SendPayout(ctx context.Context, reference, destination string, amount domain.Money) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("payout reference is required")
	}
	if ref, ok := g.lookup(reference); ok {
		return ref, nil
	}

	delay := g.MinDelay
	if g.MaxDelay > g.MinDelay {
		delay += time.Duration(rand.Int63n(int64(g.MaxDelay - g.MinDelay)))
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
	}

	if rand.Float64() < g.FailureRate {
		return "", fmt.Errorf("gateway temporarily unavailable")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.sent[reference]; ok {
		return ref, nil
	}
	// Format: MOCK-YYYYMMDD-HHMMSS-XXXXX
	ref := fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000))
	if g.sent == nil {
		g.sent = make(map[string]string)
	}
	g.sent[reference] = ref
	return ref, nil
}

// Payouts is the number of distinct payouts sent.
func (g *MockGateway) Payouts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

func (g *MockGateway) lookup(reference string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.sent[reference]
	return ref, ok
}
