package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kmorales/car-audio-hub-go/internal/apperrors"
)

// Handler adapts handlers that return errors into http.Handler.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler. Coded domain errors pass through to the
// error envelope as-is; anything uncoded is logged with the request fields and
// masked as an internal error so raw failures never leak to clients.
func (handler Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := handler(w, r)
	if err == nil {
		return
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logrus.WithFields(logrus.Fields(RequestLogFields(r))).
			WithError(err).Error("handler failed with uncoded error")
		err = apperrors.NewInternalError("Internal server error")
	}
	WriteError(w, r, err)
}

// RecovererMiddleware converts panics into 500 responses.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logrus.WithFields(logrus.Fields(RequestLogFields(r))).
					WithField("panic", recovered).Error("panic recovered")
				WriteError(w, r, apperrors.NewInternalError("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
