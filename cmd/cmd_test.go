package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/smartcontrol/internal/pkg/config"
	"github.com/anicoll/smartcontrol/internal/pkg/control"
	"github.com/anicoll/smartcontrol/internal/pkg/model"
	"github.com/anicoll/smartcontrol/internal/pkg/poller"
	"github.com/anicoll/smartcontrol/internal/pkg/server"
)

const (
	fanID   = "7d4f7a2e-3c1b-4e55-9a40-0d3c6f1e2a11"
	lightID = "c2b9e0f4-8a6d-4f3e-b1c7-5e9d2a4f6b22"
)

func newStore() *MockApplianceStore {
	return &MockApplianceStore{Appliances: model.Appliances{
		{ID: fanID, Name: model.Fan, State: model.Off},
		{ID: lightID, Name: model.Light, State: model.Off},
	}}
}

func stateOf(store *MockApplianceStore, name model.Name) model.State {
	appliances, _ := store.ListAppliances(context.Background())
	for _, a := range appliances {
		if a.Name == name {
			return a.State
		}
	}
	return ""
}

func useTestLogger(t *testing.T) {
	t.Helper()
	restore := zap.ReplaceGlobals(zaptest.NewLogger(t))
	t.Cleanup(restore)
}

func startServe(t *testing.T, cfg *config.Config, store ApplianceStore, pub StatePublisher) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, cfg, store, pub) }()
	return "http://" + ln.Addr().String(), cancel, done
}

func TestServe_ContextCancellation(t *testing.T) {
	useTestLogger(t)
	url, cancel, done := startServe(t, &config.Config{}, newStore(), &MockStatePublisher{})

	res, err := http.Get(url + "/control")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"fan":"off","light":"off"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}
}

func TestServe_RepublishesOnStart(t *testing.T) {
	useTestLogger(t)
	var republished atomic.Int32
	pub := &MockStatePublisher{
		RepublishFunc: func(_ context.Context, appliances model.Appliances) error {
			assert.Len(t, appliances, 2)
			republished.Add(1)
			return nil
		},
	}
	cfg := &config.Config{Mqtt: &config.MqttConfig{RepublishSchedule: "@every 1h"}}
	_, cancel, done := startServe(t, cfg, newStore(), pub)

	assert.Eventually(t, func() bool {
		return republished.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestServe_InvalidSchedule(t *testing.T) {
	useTestLogger(t)
	cfg := &config.Config{Mqtt: &config.MqttConfig{RepublishSchedule: "whenever"}}
	_, cancel, done := startServe(t, cfg, newStore(), &MockStatePublisher{})
	defer cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve should fail on a bad cron schedule")
	}
}

func TestSeed(t *testing.T) {
	tests := map[string]struct {
		created  model.Appliances
		seedErr  error
		wantErr  bool
		wantLogs []string
	}{
		"creates missing": {
			created: model.Appliances{
				{ID: fanID, Name: model.Fan, State: model.Off},
				{ID: lightID, Name: model.Light, State: model.Off},
			},
			wantLogs: []string{"seeded appliance", "seeded appliance"},
		},
		"already seeded": {
			wantLogs: []string{"appliances already present, nothing seeded"},
		},
		"store failure": {
			seedErr: errors.New("connection refused"),
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

			store := &MockApplianceStore{
				SeedFunc: func(_ context.Context, state model.State) (model.Appliances, error) {
					assert.Equal(t, model.Off, state)
					return tt.created, tt.seedErr
				},
			}
			err := seed(context.Background(), store)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			var got []string
			for _, e := range logs.All() {
				got = append(got, e.Message)
			}
			assert.Equal(t, tt.wantLogs, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("LOUD", "stdout")
	assert.Error(t, err)

	logger, err := newLogger("debug", "stderr")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func newTestPoller(t *testing.T, store *MockApplianceStore) *poller.Poller {
	t.Helper()
	useTestLogger(t)
	handler, err := server.Handler(server.New(store, &MockStatePublisher{}), prometheus.NewRegistry())
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := control.New(srv.URL, time.Second)
	require.NoError(t, err)
	return poller.New(client,
		poller.WithInterval(time.Hour),
		poller.WithReconcileDelay(10*time.Millisecond),
	)
}

func TestPoll_ToggleAndQuit(t *testing.T) {
	store := newStore()
	p := newTestPoller(t, store)
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() { done <- poll(context.Background(), p, in, &out) }()

	require.Eventually(t, func() bool {
		return p.Snapshot().IsOnline
	}, 2*time.Second, 10*time.Millisecond)

	_, err := io.WriteString(w, "fan\n2\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return stateOf(store, model.Fan) == model.On && stateOf(store, model.Light) == model.On
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(w, "q\n")
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not quit")
	}

	snap := p.Snapshot()
	assert.Equal(t, model.On, snap.Appliances[0].State)
	assert.Equal(t, model.On, snap.Appliances[1].State)
}

func TestPoll_EndOfInput(t *testing.T) {
	p := newTestPoller(t, newStore())
	err := poll(context.Background(), p, strings.NewReader(""), io.Discard)
	assert.NoError(t, err)
}

func TestHandleCommand(t *testing.T) {
	tests := map[string]struct {
		line     string
		online   bool
		wantQuit bool
		wantOut  string
		wantFan  model.State
	}{
		"quit": {
			line:     "q",
			online:   true,
			wantQuit: true,
			wantFan:  model.Off,
		},
		"blank line": {
			line:    "   ",
			online:  true,
			wantFan: model.Off,
		},
		"toggle by name": {
			line:    "Fan",
			online:  true,
			wantFan: model.On,
		},
		"toggle by number": {
			line:    "1",
			online:  true,
			wantFan: model.On,
		},
		"number out of range": {
			line:    "3",
			online:  true,
			wantOut: "no appliance numbered 3",
			wantFan: model.Off,
		},
		"unknown": {
			line:    "heater",
			online:  true,
			wantOut: `unknown appliance "heater"`,
			wantFan: model.Off,
		},
		"offline": {
			line:    "fan",
			wantOut: "disconnected",
			wantFan: model.Off,
		},
		"help": {
			line:    "?",
			online:  true,
			wantOut: pollHelp,
			wantFan: model.Off,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			p := newTestPoller(t, store)
			ctx := context.Background()
			if tt.online {
				require.NoError(t, p.Refresh(ctx))
			}

			var out bytes.Buffer
			assert.Equal(t, tt.wantQuit, handleCommand(ctx, p, tt.line, &out))
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
			assert.Equal(t, tt.wantFan, stateOf(store, model.Fan))
		})
	}
}
