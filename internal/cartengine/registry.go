package cartengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mahendraputra/storefront-backend/internal/rawcart"
	"github.com/mahendraputra/storefront-backend/pkg/logger"
	"github.com/mahendraputra/storefront-backend/pkg/metrics"
)

// Registry hands out one Engine per authenticated user and reaps sessions
// that have gone idle. Engines are stateful (pending edits, selection), so
// they must be shared across a user's requests.
type Registry struct {
	provider rawcart.Provider
	products ProductLoader
	vouchers VoucherApplier
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	cfg      Config
	idleTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	stop     chan struct{}
}

type session struct {
	engine   *Engine
	store    rawcart.Store
	lastSeen time.Time
}

// NewRegistry builds the per-user engine registry. idleTTL bounds how long
// an untouched session survives.
func NewRegistry(provider rawcart.Provider, products ProductLoader, vouchers VoucherApplier, logg *logger.Logger, m *metrics.EngineMetrics, cfg Config, idleTTL time.Duration) (*Registry, error) {
	if provider == nil {
		return nil, fmt.Errorf("cart store provider required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}

	r := &Registry{
		provider: provider,
		products: products,
		vouchers: vouchers,
		logg:     logg,
		metrics:  m,
		cfg:      cfg,
		idleTTL:  idleTTL,
		sessions: map[string]*session{},
		stop:     make(chan struct{}),
	}
	go r.janitor()
	return r, nil
}

// Engine returns the user's engine, creating it on first use. The bearer
// token is refreshed every call so async commits carry the latest one.
func (r *Registry) Engine(userID, token string) (*Engine, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("registry closed")
	}

	sess, ok := r.sessions[userID]
	if !ok {
		store := r.provider.ForUser(userID)
		engine, err := NewEngine(store, r.products, r.vouchers, r.logg, r.metrics, r.cfg)
		if err != nil {
			return nil, err
		}
		sess = &session{engine: engine, store: store}
		r.sessions[userID] = sess
	}

	sess.lastSeen = time.Now()
	if carrier, ok := sess.store.(rawcart.TokenCarrier); ok {
		carrier.SetToken(token)
	}
	return sess.engine, nil
}

// Drop evicts one user's session immediately, e.g. on logout.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	sess, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		sess.engine.Close()
	}
}

func (r *Registry) janitor() {
	interval := r.idleTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*session
	var evicted int
	for userID, sess := range r.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(r.sessions, userID)
			evicted++
		}
	}
	r.mu.Unlock()

	for _, sess := range expired {
		sess.engine.Close()
	}
	if evicted > 0 && r.logg != nil {
		ctx := r.logg.WithField(context.Background(), "evicted", evicted)
		r.logg.Info(ctx, "cart.sessions_evicted")
	}
}

// Close stops the janitor, flushes every live engine's pending edits, and
// shuts the engines down.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.stop)
	sessions := make([]*session, 0, len(r.sessions))
	for userID, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.engine.Flush()
		sess.engine.Close()
	}
}
