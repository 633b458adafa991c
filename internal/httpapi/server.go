package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnxgo/ortserve/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Ready() bool
	Model() (types.ModelResponse, error)
	Providers() (types.ProvidersResponse, error)
	SetProviders(providers []string) error
	Run(ctx context.Context, req types.RunRequest) (types.RunResponse, error)
	EndProfiling() (string, error)
}

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Tensor payloads get a larger cap than control requests.
var maxBodyBytes int64 = 32 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 32 << 20
		return
	}
	maxBodyBytes = n
}

// NewMux builds the HTTP router. corsOrigins enables cross-origin access
// for the listed origins; empty disables CORS handling entirely.
func NewMux(svc Service, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(RequestLogger)
	r.Use(MetricsMiddleware)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not loaded"))
	})

	r.Get("/v1/model", func(w http.ResponseWriter, r *http.Request) {
		model, err := svc.Model()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, model)
	})

	r.Get("/v1/providers", func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.Providers()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, providers)
	})

	r.Put("/v1/providers", func(w http.ResponseWriter, r *http.Request) {
		var req types.SetProvidersRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		err := svc.SetProviders(req.Providers)
		countRebind(err)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		providers, err := svc.Providers()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, providers)
	})

	r.Post("/v1/run", func(w http.ResponseWriter, r *http.Request) {
		var req types.RunRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if len(req.Inputs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "inputs are required")
			return
		}
		resp, err := svc.Run(r.Context(), req)
		countRun(err)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, resp)
	})

	r.Post("/v1/profiling/end", func(w http.ResponseWriter, r *http.Request) {
		path, err := svc.EndProfiling()
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, types.ProfilingResponse{Path: path})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// decodeJSONBody enforces the content type and body cap, then decodes
// into dst. On failure it writes the error response and reports false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
