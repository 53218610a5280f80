package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

const component = "binary_sensor"

var errPublishTimeout = errors.New("mqtt publish timed out")

func (s *service) Write(ctx context.Context, appliances model.Appliances) error {
	for _, a := range appliances {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.publish(s.stateTopic(a), true, []byte(a.State.String())); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAppliance publishes the Home Assistant discovery config for a, once per name.
func (s *service) RegisterAppliance(a model.Appliance) error {
	if _, exists := s.registered.Load(a.Name); exists {
		return nil
	}
	payload, err := json.Marshal(s.discoveryMsg(a))
	if err != nil {
		return err
	}
	if err := s.publish(s.baseTopic(a)+"/config", true, payload); err != nil {
		return err
	}
	s.registered.Store(a.Name, struct{}{})
	return nil
}

func (s *service) publish(topic string, retained bool, payload []byte) error {
	token := s.client.Publish(topic, 1, retained, payload)
	return wait(token)
}

func wait(token paho_mqtt.Token) error {
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

func identifier(a model.Appliance) string {
	return slug.Make("smartcontrol " + a.Name.String())
}

func (s *service) baseTopic(a model.Appliance) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, component, identifier(a))
}

func (s *service) stateTopic(a model.Appliance) string {
	return s.baseTopic(a) + "/state"
}

func (s *service) discoveryMsg(a model.Appliance) model.DiscoveryMessage {
	return model.DiscoveryMessage{
		BaseTopic:   s.baseTopic(a),
		Name:        a.Name.String(),
		UniqueID:    identifier(a),
		StateTopic:  "~/state",
		PayloadOn:   model.On.String(),
		PayloadOff:  model.Off.String(),
		DeviceClass: "power",
		Icon:        a.Name.Icon(),
		Device: model.DiscoveryDevice{
			Name:         "SmartControl",
			Identifiers:  []string{"smartcontrol"},
			Model:        "fan/light controller",
			Manufacturer: "SmartControl",
		},
	}
}
