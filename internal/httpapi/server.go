// Package httpapi serves the OpenAI compatible embeddings API over the model
// directory.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glowrs/internal/server"
	"glowrs/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
// *server.State implements it.
type Service interface {
	Get(name string) (server.EmbeddingsClient, error)
	Names() []string
	ReadySince(name string) (time.Time, bool)
	Status() types.StatusResponse
	Ready() bool
}

var _ Service = (*server.State)(nil)

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/embeddings", embeddingsHandler(svc))
		r.Get("/models", listModelsHandler(svc))
		r.Get("/models/*", getModelHandler(svc))
	})

	r.Get("/status", statusHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-Id", "X-Queue-Time-Ms", "X-Process-Time-Ms"},
		MaxAge:         300,
	}
}

// listModelsHandler godoc
// @Summary      List models
// @Description  Models that loaded and are being served.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /v1/models [get]
func listModelsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.ModelsResponse{Object: "list", Data: []types.Model{}}
		for _, name := range svc.Names() {
			resp.Data = append(resp.Data, modelFor(svc, name))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// getModelHandler godoc
// @Summary      Describe a model
// @Tags         models
// @Produce      json
// @Param        model  path      string  true  "Model name, e.g. org/model"
// @Success      200    {object}  types.Model
// @Failure      404    {object}  types.ErrorResponse
// @Router       /v1/models/{model} [get]
func getModelHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if _, ok := svc.ReadySince(name); !ok {
			writeJSONError(w, http.StatusNotFound, errTypeNotFound, server.ErrModelNotFound(name).Error())
			return
		}
		writeJSON(w, http.StatusOK, modelFor(svc, name))
	}
}

func modelFor(svc Service, name string) types.Model {
	m := types.Model{ID: name, Object: "model", OwnedBy: name}
	if owner, _, ok := strings.Cut(name, "/"); ok {
		m.OwnedBy = owner
	}
	if t, ok := svc.ReadySince(name); ok {
		m.Created = t.Unix()
	}
	return m
}

// statusHandler godoc
// @Summary      Server status
// @Description  Per-model worker state, load failures and process usage.
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func statusHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
