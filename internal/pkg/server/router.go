package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anicoll/smartcontrol/pkg/api"
)

// Handler wires the control service into a router with request validation,
// logging, metrics and CORS. Metrics are registered on reg and served at /metrics.
func Handler(si api.ServerInterface, reg *prometheus.Registry) (http.Handler, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	m := newMetrics(reg)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})).Methods(http.MethodGet)

	api.HandlerWithOptions(si, api.GorillaServerOptions{
		BaseRouter: router,
		// the last middleware wraps outermost.
		Middlewares: []api.MiddlewareFunc{v.Middleware, LoggingMiddleware, m.Middleware},
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			handleError(w, fmt.Errorf("%w: %w", errBadPayload, err))
		},
	})

	return CORSMiddleware(router), nil
}
