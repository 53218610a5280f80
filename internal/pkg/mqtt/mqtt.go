package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/smartcontrol/internal/pkg/config"
)

const publishTimeout = 5 * time.Second

type service struct {
	client     paho_mqtt.Client
	prefix     string
	registered sync.Map
	logger     *zap.Logger
}

func New(client paho_mqtt.Client, discoveryPrefix string) *service {
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}
	return &service{
		client: client,
		prefix: discoveryPrefix,
		logger: zap.L(),
	}
}

// NewClient builds a paho client from cfg. The client is not connected.
func NewClient(cfg *config.MqttConfig) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.Host).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(publishTimeout)
	return paho_mqtt.NewClient(opts)
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(publishTimeout)
	if err := token.Error(); err != nil {
		return err
	}
	if res {
		return nil
	}
	return errors.New("unable to connect in time")
}

func (s *service) Close() error {
	s.client.Disconnect(250)
	return nil
}
