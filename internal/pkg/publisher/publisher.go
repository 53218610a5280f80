package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

type sink interface {
	// Write publishes the appliance states to the sink.
	Write(ctx context.Context, appliances model.Appliances) error
	RegisterAppliance(appliance model.Appliance) error
}

// sinkState tracks what a single sink has acknowledged.
type sinkState struct {
	sink       sink
	registered map[string]bool        // appliance id
	published  map[string]model.State // appliance id -> last state written
}

// Publisher fans confirmed appliance state out to every registered sink.
// A sink only counts an appliance as registered or a state as published once
// it reported success, so failures are retried on the next call.
// Safe for concurrent use.
type Publisher struct {
	mu     sync.Mutex
	sinks  map[string]*sinkState
	logger *zap.Logger
}

func New() *Publisher {
	return &Publisher{
		sinks:  make(map[string]*sinkState),
		logger: zap.L(),
	}
}

func (p *Publisher) Register(name string, s sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sinks[name]; ok {
		return fmt.Errorf("%w: %s", errAlreadyRegistered, name)
	}
	p.sinks[name] = &sinkState{
		sink:       s,
		registered: make(map[string]bool),
		published:  make(map[string]model.State),
	}
	return nil
}

// Publish writes the appliances whose state differs from what each sink last accepted.
func (p *Publisher) Publish(ctx context.Context, appliances ...model.Appliance) error {
	return p.publish(ctx, appliances, false)
}

// Republish writes every appliance regardless of what was published before.
func (p *Publisher) Republish(ctx context.Context, appliances model.Appliances) error {
	return p.publish(ctx, appliances, true)
}

func (p *Publisher) publish(ctx context.Context, appliances model.Appliances, force bool) error {
	if len(appliances) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, st := range p.sinks {
		if err := p.register(name, st, appliances); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}

		pending := model.Appliances{}
		for _, a := range appliances {
			if last, ok := st.published[a.ID]; force || !ok || last != a.State {
				pending = append(pending, a)
			}
		}
		if len(pending) == 0 {
			continue
		}

		if err := st.sink.Write(ctx, pending); err != nil {
			p.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, a := range pending {
			st.published[a.ID] = a.State
		}
		p.logger.Debug("published appliance states", zap.Int("count", len(pending)), zap.String("publisher", name))
	}
	return errors.Join(errs...)
}

// register announces appliances the sink has not yet accepted.
func (p *Publisher) register(name string, st *sinkState, appliances model.Appliances) error {
	var errs []error
	for _, a := range appliances {
		if st.registered[a.ID] {
			continue
		}
		if err := st.sink.RegisterAppliance(a); err != nil {
			p.logger.Error("failed to register appliance", zap.Error(err), zap.String("publisher", name))
			errs = append(errs, err)
			continue
		}
		st.registered[a.ID] = true
		p.logger.Info("registered appliance", zap.Stringer("appliance", a.Name), zap.String("publisher", name))
	}
	return errors.Join(errs...)
}
