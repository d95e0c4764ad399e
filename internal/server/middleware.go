package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
)

// middleware attaches the server logger to every request and logs each
// finished exchange at debug level.
func (s *Server) middleware() []mux.MiddlewareFunc {
	return []mux.MiddlewareFunc{
		hlog.NewHandler(s.logger),
		hlog.MethodHandler("method"),
		hlog.URLHandler("url"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
	}
}
