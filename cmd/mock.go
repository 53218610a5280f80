package cmd

import (
	"context"
	"sync"

	"github.com/anicoll/smartcontrol/internal/pkg/database"
	"github.com/anicoll/smartcontrol/internal/pkg/model"
)

// MockApplianceStore is an ApplianceStore and Seeder for tests. Unset funcs
// fall back to an in-memory list.
type MockApplianceStore struct {
	ListAppliancesFunc  func(ctx context.Context) (model.Appliances, error)
	UpdateApplianceFunc func(ctx context.Context, id string, patch model.Patch) (model.Appliance, error)
	SeedFunc            func(ctx context.Context, state model.State) (model.Appliances, error)

	mu         sync.Mutex
	Appliances model.Appliances
}

func (m *MockApplianceStore) ListAppliances(ctx context.Context) (model.Appliances, error) {
	if m.ListAppliancesFunc != nil {
		return m.ListAppliancesFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(model.Appliances{}, m.Appliances...), nil
}

func (m *MockApplianceStore) UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error) {
	if m.UpdateApplianceFunc != nil {
		return m.UpdateApplianceFunc(ctx, id, patch)
	}
	if err := patch.Validate(); err != nil {
		return model.Appliance{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Appliances {
		if m.Appliances[i].ID == id {
			m.Appliances[i] = patch.Apply(m.Appliances[i])
			return m.Appliances[i], nil
		}
	}
	return model.Appliance{}, database.ErrNotFound
}

func (m *MockApplianceStore) Seed(ctx context.Context, state model.State) (model.Appliances, error) {
	if m.SeedFunc != nil {
		return m.SeedFunc(ctx, state)
	}
	return nil, nil
}

type MockStatePublisher struct {
	PublishFunc   func(ctx context.Context, appliances ...model.Appliance) error
	RepublishFunc func(ctx context.Context, appliances model.Appliances) error
}

func (m *MockStatePublisher) Publish(ctx context.Context, appliances ...model.Appliance) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, appliances...)
	}
	return nil
}

func (m *MockStatePublisher) Republish(ctx context.Context, appliances model.Appliances) error {
	if m.RepublishFunc != nil {
		return m.RepublishFunc(ctx, appliances)
	}
	return nil
}
