package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"onnxd/internal/dispatcher"
	"onnxd/internal/protocol"
	"onnxd/pkg/types"
)

// Service defines the dispatcher methods required by the HTTP API layer.
type Service interface {
	Initialize(ctx context.Context) error
	Submit(feeds protocol.Feeds) (*dispatcher.Call, error)
	Wait(ctx context.Context, c *dispatcher.Call) ([]float32, error)
	Terminate()
	ModelPath() string
	Ready() bool
	Status() types.StatusResponse
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(corsHandler())
	}
	r.Use(MetricsMiddleware)

	r.Post("/initialize", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, cancel := joinContexts(shutdownCtx, r.Context())
		defer cancel()
		if err := svc.Initialize(ctx); err != nil {
			if r.Context().Err() != nil {
				return
			}
			status := statusFor(err)
			logRequestEnd(r, status, start, err)
			writeJSONError(w, status, err.Error())
			return
		}
		logRequestEnd(r, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, types.ModelResponse{Path: svc.ModelPath(), Ready: svc.Ready()})
	})

	r.Post("/infer", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			observeRejection(rejectMediaType)
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				observeRejection(rejectBodyTooLarge)
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			observeRejection(rejectInvalidJSON)
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		feeds := protocol.Feeds{Tokens: req.Tokens, Tones: req.Tones, Speakers: req.Speakers}
		if err := feeds.Validate(); err != nil {
			observeRejection(rejectInvalidFeeds)
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		call, err := svc.Submit(feeds)
		if err != nil {
			status := statusFor(err)
			logRequestEnd(r, status, start, err)
			writeJSONError(w, status, err.Error())
			return
		}
		logRequestStart(r, call.ID, len(feeds.Tokens))
		// Join server base context with request context so shutdown stops waiting too.
		ctx, cancel := joinContexts(shutdownCtx, r.Context())
		defer cancel()
		out, err := svc.Wait(ctx, call)
		if err != nil {
			if r.Context().Err() != nil {
				// Client went away.
				return
			}
			status := statusFor(err)
			logRequestEnd(r, status, start, err)
			writeJSONError(w, status, err.Error())
			return
		}
		logRequestEnd(r, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, types.InferResponse{
			Result:     out,
			CallID:     call.ID,
			DurationMS: time.Since(start).Milliseconds(),
		})
	})

	r.Post("/terminate", func(w http.ResponseWriter, r *http.Request) {
		svc.Terminate()
		logRequestEnd(r, http.StatusOK, time.Now(), nil)
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/model", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelResponse{Path: svc.ModelPath(), Ready: svc.Ready()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
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
		w.Write([]byte(svc.Status().State))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
