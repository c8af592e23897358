package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kmorales/car-audio-hub-go/internal/apperrors"
)

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) apperrors.ErrorBody {
	t.Helper()
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return response.Error
}

func TestHandler_CodedErrorPassesThrough(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return apperrors.NewAppError(apperrors.ErrorCodeZoneNotFound, "zone not found: 9", 404, nil)
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/zones/9", nil))

	require.Equal(t, 404, recorder.Code)
	body := decodeError(t, recorder)
	require.Equal(t, string(apperrors.ErrorCodeZoneNotFound), body.Code)
	require.Equal(t, "zone not found: 9", body.Message)
}

func TestHandler_UncodedErrorIsMasked(t *testing.T) {
	handler := Handler(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("sqlite disk io failure on volume_settings")
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/zones", nil))

	require.Equal(t, 500, recorder.Code)
	body := decodeError(t, recorder)
	require.Equal(t, string(apperrors.ErrorCodeInternalError), body.Code)
	require.NotContains(t, body.Message, "sqlite")
}

func TestRecovererMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("volume group table corrupted")
	})

	recorder := httptest.NewRecorder()
	RecovererMiddleware(next).ServeHTTP(recorder,
		httptest.NewRequest(http.MethodGet, "/v1/zones", nil))

	require.Equal(t, 500, recorder.Code)
	body := decodeError(t, recorder)
	require.Equal(t, string(apperrors.ErrorCodeInternalError), body.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	})
	wrapped := RequestIDMiddleware(next)

	// A well-formed caller id is honored end to end.
	supplied := uuid.NewString()
	request := httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	request.Header.Set("x-request-id", supplied)
	recorder := httptest.NewRecorder()
	wrapped.ServeHTTP(recorder, request)
	require.Equal(t, supplied, seen)
	require.Equal(t, supplied, recorder.Header().Get("x-request-id"))

	// Anything malformed is replaced with a fresh id.
	request = httptest.NewRequest(http.MethodGet, "/v1/zones", nil)
	request.Header.Set("x-request-id", "not-a-uuid")
	recorder = httptest.NewRecorder()
	wrapped.ServeHTTP(recorder, request)
	require.NotEqual(t, "not-a-uuid", seen)
	require.NoError(t, uuid.Validate(seen))
	require.Equal(t, seen, recorder.Header().Get("x-request-id"))
}
