package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/smartcontrol/internal/pkg/database"
	"github.com/anicoll/smartcontrol/internal/pkg/model"
	"github.com/anicoll/smartcontrol/pkg/api"
)

var _ api.ServerInterface = (*server)(nil)

const updatedMessage = "Appliance updated"

type applianceStore interface {
	ListAppliances(ctx context.Context) (model.Appliances, error)
	UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error)
}

type statePublisher interface {
	Publish(ctx context.Context, appliances ...model.Appliance) error
}

type server struct {
	store     applianceStore
	publisher statePublisher
	logger    *zap.Logger
}

// New returns the control service. publisher may be nil.
func New(store applianceStore, publisher statePublisher) *server {
	return &server{store: store, publisher: publisher, logger: zap.L()}
}

func (s *server) ListAppliances(w http.ResponseWriter, r *http.Request) {
	appliances, err := s.store.ListAppliances(r.Context())
	if err != nil {
		s.logger.Error("failed to list appliances", zap.Error(err))
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, api.ApplianceList{
		Appliances: lo.Map(appliances, func(a model.Appliance, _ int) api.Appliance {
			return toAPI(a)
		}),
	})
}

func (s *server) GetControl(w http.ResponseWriter, r *http.Request) {
	appliances, err := s.store.ListAppliances(r.Context())
	if err != nil {
		s.logger.Error("failed to list appliances", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, api.ControlError{Error: err.Error()})
		return
	}

	states := make(map[model.Name]model.State, len(model.Names))
	for _, name := range model.Names {
		// first match wins when the store holds duplicates.
		appliance, found := lo.Find(appliances, func(a model.Appliance) bool {
			return a.Name == name
		})
		if !found {
			s.logger.Warn("appliance missing from store", zap.Stringer("name", name))
			writeJSON(w, http.StatusInternalServerError, api.ControlError{
				Error: fmt.Sprintf("%s appliance not found", name),
			})
			return
		}
		states[name] = appliance.State
	}

	writeJSON(w, http.StatusOK, api.ControlState{
		Light: api.ApplianceState(states[model.Light]),
		Fan:   api.ApplianceState(states[model.Fan]),
	})
}

func (s *server) UpdateAppliance(w http.ResponseWriter, r *http.Request, id string) {
	payload, err := unmarshalPayload[api.UpdateAppliancePayload](r)
	if err != nil {
		handleError(w, err)
		return
	}

	patch := model.Patch{
		Name:  (*model.Name)(payload.Name),
		State: (*model.State)(payload.State),
	}
	if err := patch.Validate(); err != nil {
		handleError(w, err)
		return
	}

	updated, err := s.store.UpdateAppliance(r.Context(), id, patch)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Error("failed to update appliance", zap.String("id", id), zap.Error(err))
		}
		handleError(w, err)
		return
	}
	s.logger.Info("appliance updated",
		zap.String("id", updated.ID),
		zap.Stringer("name", updated.Name),
		zap.Stringer("state", updated.State),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(r.Context(), updated); err != nil {
			s.logger.Warn("failed to publish appliance state", zap.String("id", updated.ID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, api.UpdateApplianceResult{
		Message: updatedMessage,
		Updated: toAPI(updated),
	})
}

func toAPI(a model.Appliance) api.Appliance {
	out := api.Appliance{
		Id:    a.ID,
		Name:  api.ApplianceName(a.Name),
		State: api.ApplianceState(a.State),
	}
	if !a.LastUpdated.IsZero() {
		lastUpdated := a.LastUpdated.UTC()
		out.LastUpdated = &lastUpdated
	}
	return out
}

// handleError maps an error onto the {message, status:false} envelope.
func handleError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *model.ValidationError
	switch {
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &verr), errors.Is(err, errBadPayload):
		status = http.StatusBadRequest
	}
	message := err.Error()
	if message == "" {
		message = "something went wrong"
	}
	writeJSON(w, status, api.StatusMessage{Message: message, Status: false})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("failed to write response", zap.Error(err))
	}
}

var errBadPayload = errors.New("invalid request body")

// maxPayloadBytes bounds update bodies; a patch is a couple of short strings.
const maxPayloadBytes = 4 << 10

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadPayload, err)
	}
	if len(data) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: body too large", errBadPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadPayload, err)
	}
	return &out, nil
}
