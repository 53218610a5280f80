package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/anicoll/smartcontrol/pkg/api"
)

// validator rejects requests that do not match the OpenAPI document before
// they reach a handler.
type validator struct {
	router routers.Router
}

func newValidator() (*validator, error) {
	doc, err := api.LoadSpec()
	if err != nil {
		return nil, fmt.Errorf("load api spec: %w", err)
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}
	return &validator{router: router}, nil
}

func (v *validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			// routes outside the document are mux's concern.
			next.ServeHTTP(w, r)
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			handleError(w, fmt.Errorf("%w: %s", errBadPayload, validationMessage(err)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validationMessage reduces a kin-openapi error to the offending field and
// reason. The full error, schema dump included, is not sent to clients.
func validationMessage(err error) string {
	var serr *openapi3.SchemaError
	if errors.As(err, &serr) && serr.Reason != "" {
		if field := strings.Join(serr.JSONPointer(), "."); field != "" {
			return field + ": " + serr.Reason
		}
		return serr.Reason
	}
	var rerr *openapi3filter.RequestError
	if errors.As(err, &rerr) && rerr.Reason != "" {
		return rerr.Reason
	}
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}
