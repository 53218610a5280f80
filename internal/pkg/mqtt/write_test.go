package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

type fakeToken struct {
	err       error
	completes bool
}

func (t *fakeToken) Wait() bool                     { return t.completes }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.completes }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient overrides Publish; any other method panics through the nil embedded client.
type fakeClient struct {
	paho_mqtt.Client
	mu        sync.Mutex
	published []message
	token     *fakeToken
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message{topic: topic, retained: retained, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{completes: true}
}

func newTestService(t *testing.T, client paho_mqtt.Client) *service {
	t.Helper()
	zap.ReplaceGlobals(zaptest.NewLogger(t))
	return New(client, "")
}

func TestWrite(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)

	err := s.Write(context.Background(), model.Appliances{
		{ID: "1", Name: model.Fan, State: model.On},
		{ID: "2", Name: model.Light, State: model.Off},
	})
	require.NoError(t, err)

	require.Len(t, client.published, 2)
	assert.Equal(t, "homeassistant/binary_sensor/smartcontrol-fan/state", client.published[0].topic)
	assert.Equal(t, "on", string(client.published[0].payload))
	assert.True(t, client.published[0].retained)
	assert.Equal(t, "homeassistant/binary_sensor/smartcontrol-light/state", client.published[1].topic)
	assert.Equal(t, "off", string(client.published[1].payload))
}

func TestWrite_Failures(t *testing.T) {
	tests := map[string]struct {
		token   *fakeToken
		wantErr error
	}{
		"timeout": {
			token:   &fakeToken{completes: false},
			wantErr: errPublishTimeout,
		},
		"broker error": {
			token:   &fakeToken{completes: true, err: errors.New("not authorised")},
			wantErr: nil,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestService(t, &fakeClient{token: tt.token})
			err := s.Write(context.Background(), model.Appliances{{ID: "1", Name: model.Fan, State: model.On}})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRegisterAppliance(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.Off}

	require.NoError(t, s.RegisterAppliance(fan))
	require.NoError(t, s.RegisterAppliance(fan))

	require.Len(t, client.published, 1, "discovery config is only sent once")
	msg := client.published[0]
	assert.Equal(t, "homeassistant/binary_sensor/smartcontrol-fan/config", msg.topic)
	assert.True(t, msg.retained)

	var got model.DiscoveryMessage
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, "smartcontrol-fan", got.UniqueID)
	assert.Equal(t, "homeassistant/binary_sensor/smartcontrol-fan", got.BaseTopic)
	assert.Equal(t, "mdi:fan", got.Icon)
	assert.Equal(t, "~/state", got.StateTopic)
	assert.Equal(t, "on", got.PayloadOn)
	assert.Equal(t, "off", got.PayloadOff)
}

func TestWrite_CancelledContext(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(t, client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, model.Appliances{{ID: "1", Name: model.Fan, State: model.On}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.published)
}

func TestRegisterAppliance_RetriedAfterFailure(t *testing.T) {
	client := &fakeClient{token: &fakeToken{completes: false}}
	s := newTestService(t, client)
	fan := model.Appliance{ID: "1", Name: model.Fan, State: model.Off}

	assert.ErrorIs(t, s.RegisterAppliance(fan), errPublishTimeout)
	client.token = nil
	require.NoError(t, s.RegisterAppliance(fan))
	require.NoError(t, s.RegisterAppliance(fan))

	assert.Len(t, client.published, 2, "config re-sent once after the failed attempt")
}
