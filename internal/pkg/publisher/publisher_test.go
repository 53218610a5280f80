package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

type MockSink struct {
	WriteFunc             func(ctx context.Context, appliances model.Appliances) error
	RegisterApplianceFunc func(appliance model.Appliance) error
	written               []model.Appliances
	registered            []model.Appliance
}

func (m *MockSink) Write(ctx context.Context, appliances model.Appliances) error {
	m.written = append(m.written, appliances)
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, appliances)
	}
	return nil
}

func (m *MockSink) RegisterAppliance(appliance model.Appliance) error {
	if m.RegisterApplianceFunc != nil {
		if err := m.RegisterApplianceFunc(appliance); err != nil {
			return err
		}
	}
	m.registered = append(m.registered, appliance)
	return nil
}

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	return New()
}

func TestRegister(t *testing.T) {
	p := newTestPublisher(t)
	require.NoError(t, p.Register("mqtt", &MockSink{}))
	assert.ErrorIs(t, p.Register("mqtt", &MockSink{}), errAlreadyRegistered)
}

func TestPublish_OnlyChangedStates(t *testing.T) {
	p := newTestPublisher(t)
	sink := &MockSink{}
	require.NoError(t, p.Register("mqtt", sink))
	ctx := context.Background()

	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.Off}

	require.NoError(t, p.Publish(ctx, fan))
	require.NoError(t, p.Publish(ctx, fan))
	fan.State = model.On
	require.NoError(t, p.Publish(ctx, fan))

	require.Len(t, sink.written, 2)
	assert.Equal(t, model.Off, sink.written[0][0].State)
	assert.Equal(t, model.On, sink.written[1][0].State)
	assert.Len(t, sink.registered, 1, "appliance registered once")
}

func TestRepublish_WritesEverything(t *testing.T) {
	p := newTestPublisher(t)
	sink := &MockSink{}
	require.NoError(t, p.Register("mqtt", sink))
	ctx := context.Background()

	appliances := model.Appliances{
		{ID: "1", Name: model.Fan, State: model.Off},
		{ID: "2", Name: model.Light, State: model.On},
	}
	require.NoError(t, p.Publish(ctx, appliances...))
	require.NoError(t, p.Republish(ctx, appliances))

	require.Len(t, sink.written, 2)
	assert.Equal(t, appliances, sink.written[1])
}

func TestPublish_SinkFailure(t *testing.T) {
	p := newTestPublisher(t)
	broken := &MockSink{WriteFunc: func(context.Context, model.Appliances) error {
		return errors.New("broker unreachable")
	}}
	healthy := &MockSink{}
	require.NoError(t, p.Register("broken", broken))
	require.NoError(t, p.Register("healthy", healthy))

	err := p.Publish(context.Background(), model.Appliance{ID: "1", Name: model.Fan, State: model.On})
	assert.ErrorContains(t, err, "broker unreachable")
	assert.Len(t, healthy.written, 1, "a failing sink must not block the others")
}

func TestPublish_RetriesFailedRegistration(t *testing.T) {
	p := newTestPublisher(t)
	failures := 1
	sink := &MockSink{RegisterApplianceFunc: func(model.Appliance) error {
		if failures > 0 {
			failures--
			return errors.New("broker down")
		}
		return nil
	}}
	require.NoError(t, p.Register("mqtt", sink))
	ctx := context.Background()
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.On}

	assert.ErrorContains(t, p.Publish(ctx, fan), "broker down")
	assert.Empty(t, sink.registered)

	fan.State = model.Off
	require.NoError(t, p.Publish(ctx, fan))
	require.NoError(t, p.Republish(ctx, model.Appliances{fan}))
	assert.Len(t, sink.registered, 1, "registered once after the broker recovered")
}

func TestRepublish_RetriesFailedRegistration(t *testing.T) {
	p := newTestPublisher(t)
	failures := 1
	sink := &MockSink{RegisterApplianceFunc: func(model.Appliance) error {
		if failures > 0 {
			failures--
			return errors.New("broker down")
		}
		return nil
	}}
	require.NoError(t, p.Register("mqtt", sink))
	ctx := context.Background()
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.On}

	assert.Error(t, p.Publish(ctx, fan))
	require.NoError(t, p.Republish(ctx, model.Appliances{fan}))
	assert.Len(t, sink.registered, 1)
}

func TestPublish_RetriesFailedWrite(t *testing.T) {
	p := newTestPublisher(t)
	failures := 1
	sink := &MockSink{WriteFunc: func(context.Context, model.Appliances) error {
		if failures > 0 {
			failures--
			return errors.New("broker down")
		}
		return nil
	}}
	require.NoError(t, p.Register("mqtt", sink))
	ctx := context.Background()
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.On}

	assert.ErrorContains(t, p.Publish(ctx, fan), "broker down")
	require.NoError(t, p.Publish(ctx, fan))
	require.Len(t, sink.written, 2, "same state is written again after a failed write")
	assert.Equal(t, model.On, sink.written[1][0].State)

	require.NoError(t, p.Publish(ctx, fan))
	assert.Len(t, sink.written, 2, "nothing new once the sink accepted it")
}

func TestPublish_TracksSinksIndependently(t *testing.T) {
	p := newTestPublisher(t)
	failures := 1
	flaky := &MockSink{WriteFunc: func(context.Context, model.Appliances) error {
		if failures > 0 {
			failures--
			return errors.New("broker down")
		}
		return nil
	}}
	healthy := &MockSink{}
	require.NoError(t, p.Register("flaky", flaky))
	require.NoError(t, p.Register("healthy", healthy))
	ctx := context.Background()
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.On}

	assert.Error(t, p.Publish(ctx, fan))
	require.NoError(t, p.Publish(ctx, fan))
	assert.Len(t, flaky.written, 2)
	assert.Len(t, healthy.written, 1)
}
