package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/samber/lo"

	"github.com/anicoll/smartcontrol/internal/pkg/model"
	"github.com/anicoll/smartcontrol/pkg/api"
)

const DefaultTimeout = time.Second

// ErrNetwork wraps every failure to reach the control service or read its reply.
var ErrNetwork = errors.New("control service unreachable")

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control service returned %d: %s", e.Code, e.Message)
}

type Client struct {
	api api.ClientWithResponsesInterface
}

// New returns a client for the control service at baseURL. Every request is
// bounded by timeout; zero means DefaultTimeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid control service url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c, err := api.NewClientWithResponses(baseURL,
		api.WithHTTPClient(&http.Client{Timeout: timeout}),
		api.WithRequestEditorFn(accept),
	)
	if err != nil {
		return nil, err
	}
	return &Client{api: c}, nil
}

func accept(_ context.Context, req *http.Request) error {
	req.Header.Set("Accept", "application/json")
	return nil
}

func (c *Client) ListAppliances(ctx context.Context) (model.Appliances, error) {
	res, err := c.api.ListAppliancesWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if res.JSON200 == nil {
		return nil, statusError(res.StatusCode(), res.Body)
	}
	return lo.Map(res.JSON200.Appliances, func(a api.Appliance, _ int) model.Appliance {
		return fromAPI(a)
	}), nil
}

func (c *Client) UpdateAppliance(ctx context.Context, id string, patch model.Patch) (model.Appliance, error) {
	res, err := c.api.UpdateApplianceWithResponse(ctx, id, api.UpdateAppliancePayload{
		Name:  (*api.ApplianceName)(patch.Name),
		State: (*api.ApplianceState)(patch.State),
	})
	if err != nil {
		return model.Appliance{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if res.JSON200 == nil {
		return model.Appliance{}, statusError(res.StatusCode(), res.Body)
	}
	return fromAPI(res.JSON200.Updated), nil
}

// Control returns the state of each appliance by name.
func (c *Client) Control(ctx context.Context) (map[model.Name]model.State, error) {
	res, err := c.api.GetControlWithResponse(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if res.JSON200 == nil {
		return nil, statusError(res.StatusCode(), res.Body)
	}
	return map[model.Name]model.State{
		model.Fan:   model.State(res.JSON200.Fan),
		model.Light: model.State(res.JSON200.Light),
	}, nil
}

// statusError pulls the cause out of either error envelope the service uses.
func statusError(code int, body []byte) *StatusError {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if err := json.Unmarshal(body, &envelope); err == nil {
		msg = lo.Ternary(envelope.Message != "", envelope.Message, envelope.Error)
	}
	return &StatusError{Code: code, Message: msg}
}

func fromAPI(a api.Appliance) model.Appliance {
	out := model.Appliance{
		ID:    a.Id,
		Name:  model.Name(a.Name),
		State: model.State(a.State),
	}
	if a.LastUpdated != nil {
		out.LastUpdated = *a.LastUpdated
	}
	return out
}
