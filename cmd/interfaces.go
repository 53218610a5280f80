package cmd

import (
	"context"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

// ApplianceStore is what serve needs from the store.
type ApplianceStore interface {
	ListAppliances(ctx context.Context) (model.Appliances, error)
	UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error)
}

type Seeder interface {
	Seed(ctx context.Context, state model.State) (model.Appliances, error)
}

// StatePublisher fans confirmed appliance states out to external sinks.
type StatePublisher interface {
	Publish(ctx context.Context, appliances ...model.Appliance) error
	Republish(ctx context.Context, appliances model.Appliances) error
}
