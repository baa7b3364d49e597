package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pilotwatch/pilotwatch/server/internal/archive"
	"github.com/pilotwatch/pilotwatch/server/internal/danger"
	"github.com/pilotwatch/pilotwatch/server/internal/debrief"
	"github.com/pilotwatch/pilotwatch/server/internal/ingest"
	"github.com/pilotwatch/pilotwatch/server/internal/recommend"
	"github.com/pilotwatch/pilotwatch/server/internal/roster"
	"github.com/pilotwatch/pilotwatch/server/internal/session"
)

// errBadRequest marks request bodies that could not be decoded or validated.
var errBadRequest = errors.New("bad request")

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	var fe *debrief.FieldError
	var pe *recommend.ProviderError
	switch {
	case errors.Is(err, roster.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrAlreadySet),
		errors.Is(err, danger.ErrNotAlerting):
		return http.StatusConflict
	case errors.Is(err, session.ErrOutOfOrderVitals):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest),
		errors.Is(err, ingest.ErrEmptySample),
		errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, recommend.ErrAllFailed), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		slog.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	jsonErr(w, code, err.Error())
}
