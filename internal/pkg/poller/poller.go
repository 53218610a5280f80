// Package poller keeps an eventually consistent local view of the appliances
// held by the control service.
//
// A Poller owns the view. Refreshes replace it wholesale; toggles flip one
// appliance locally before the update request is sent and then schedule a
// reconciling refresh, which is the only correction applied to an optimistic
// flip. Responses are sequenced so a slow refresh can never overwrite a newer one.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/smartcontrol/internal/pkg/control"
	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

const (
	DefaultInterval       = time.Second
	DefaultReconcileDelay = 300 * time.Millisecond
)

var (
	ErrOffline          = errors.New("control service is offline")
	ErrUnknownAppliance = errors.New("unknown appliance")
)

type applianceClient interface {
	ListAppliances(ctx context.Context) (model.Appliances, error)
	UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error)
}

// Renderer draws a snapshot of the view. Render is called with the poller's
// lock released, from whichever goroutine changed the view.
type Renderer interface {
	Render(Snapshot)
}

type Snapshot struct {
	Appliances model.Appliances
	IsLoading  bool
	IsOnline   bool
	LastUpdate time.Time
}

type Poller struct {
	client         applianceClient
	renderer       Renderer
	interval       time.Duration
	reconcileDelay time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu       sync.Mutex
	view     Snapshot
	issued   uint64 // sequence of the latest refresh started
	applied  uint64 // sequence of the latest refresh whose result was applied
	inFlight int

	refreshCh   chan struct{}
	reconcileCh chan struct{}
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithReconcileDelay sets how long after a toggle the reconciling refresh runs.
// It is capped at the polling interval.
func WithReconcileDelay(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.reconcileDelay = d
		}
	}
}

func WithRenderer(r Renderer) Option {
	return func(p *Poller) {
		p.renderer = r
	}
}

func New(client applianceClient, opts ...Option) *Poller {
	p := &Poller{
		client:         client,
		interval:       DefaultInterval,
		reconcileDelay: DefaultReconcileDelay,
		logger:         zap.L(),
		now:            time.Now,
		view:           Snapshot{Appliances: model.Appliances{}},
		refreshCh:      make(chan struct{}, 1),
		reconcileCh:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	p.reconcileDelay = min(p.reconcileDelay, p.interval)
	return p
}

// Snapshot returns a copy of the current view.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Poller) snapshot() Snapshot {
	s := p.view
	s.Appliances = append(model.Appliances{}, p.view.Appliances...)
	return s
}

// Run refreshes immediately and then on every tick until ctx is done. The
// ticker and any pending reconcile timer are released when Run returns.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	reconcile := time.NewTimer(p.reconcileDelay)
	reconcile.Stop()
	defer reconcile.Stop()

	p.render()
	_ = p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = p.Refresh(ctx)
		case <-p.refreshCh:
			_ = p.Refresh(ctx)
		case <-p.reconcileCh:
			reconcile.Reset(p.reconcileDelay)
		case <-reconcile.C:
			_ = p.Refresh(ctx)
		}
	}
}

// RequestRefresh asks Run for an immediate refresh, used by the manual retry.
func (p *Poller) RequestRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Refresh fetches the full list. On success the view is replaced and marked
// online; on failure the view is kept and marked offline. A result older than
// one already applied is dropped.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.issued++
	seq := p.issued
	p.inFlight++
	p.view.IsLoading = true
	p.mu.Unlock()
	p.render()

	appliances, err := p.client.ListAppliances(ctx)

	p.mu.Lock()
	p.inFlight--
	p.view.IsLoading = p.inFlight > 0
	stale := seq < p.applied
	if !stale {
		p.applied = seq
		if err != nil {
			p.view.IsOnline = false
		} else {
			p.view.Appliances = appliances
			p.view.IsOnline = true
			p.view.LastUpdate = p.now()
		}
	}
	p.mu.Unlock()
	p.render()

	if stale {
		p.logger.Debug("dropped stale refresh", zap.Uint64("seq", seq))
	}
	if err != nil {
		p.logger.Warn("failed to refresh appliances", zap.Error(err))
	}
	return err
}

// Toggle flips the appliance with the given id (or name) locally and asks the
// service to apply the new state. A reconciling refresh is scheduled whatever
// the outcome; the optimistic flip is never rolled back here. An unreachable
// service marks the view offline.
func (p *Poller) Toggle(ctx context.Context, key string) error {
	p.mu.Lock()
	if !p.view.IsOnline {
		p.mu.Unlock()
		return ErrOffline
	}
	_, idx, found := lo.FindIndexOf(p.view.Appliances, func(a model.Appliance) bool {
		return a.ID == key || a.Name.String() == key
	})
	if !found {
		p.mu.Unlock()
		return ErrUnknownAppliance
	}
	target := p.view.Appliances[idx]
	next := target.State.Toggle()
	p.view.Appliances[idx].State = next
	p.mu.Unlock()
	p.render()

	defer p.scheduleReconcile()

	if _, err := p.client.UpdateAppliance(ctx, target.ID, model.Patch{State: &next}); err != nil {
		if errors.Is(err, control.ErrNetwork) {
			p.mu.Lock()
			p.view.IsOnline = false
			p.mu.Unlock()
			p.render()
		}
		p.logger.Warn("failed to update appliance",
			zap.String("id", target.ID),
			zap.Stringer("state", next),
			zap.Error(err),
		)
		return err
	}
	p.logger.Debug("appliance updated", zap.String("id", target.ID), zap.Stringer("state", next))
	return nil
}

func (p *Poller) scheduleReconcile() {
	select {
	case p.reconcileCh <- struct{}{}:
	default:
	}
}

func (p *Poller) render() {
	if p.renderer == nil {
		return
	}
	p.renderer.Render(p.Snapshot())
}
