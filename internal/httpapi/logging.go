package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, requests are not logged.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) {
	l = l.With().Str("component", "http").Logger()
	zlog = &l
}

func logRequestStart(r *http.Request, callID string, tokens int) {
	if zlog == nil {
		return
	}
	z := zlog.Debug().Str("path", r.URL.Path).Str("call_id", callID).Int("tokens", tokens)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("request start")
}

func logRequestEnd(r *http.Request, status int, start time.Time, err error) {
	if zlog == nil {
		return
	}
	z := zlog.Info()
	if status >= 500 {
		z = zlog.Error()
	} else if status >= 400 {
		z = zlog.Warn()
	}
	z = z.Str("path", r.URL.Path).Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("request end")
}
