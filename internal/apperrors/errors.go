package apperrors

type ErrorCode string

const (
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError  ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrorCodeConflict         ErrorCode = "CONFLICT"
	ErrorCodeZoneNotFound     ErrorCode = "ZONE_NOT_FOUND"
	ErrorCodeGroupNotFound    ErrorCode = "VOLUME_GROUP_NOT_FOUND"
	ErrorCodeConfigNotFound   ErrorCode = "ZONE_CONFIG_NOT_FOUND"
	ErrorCodeDeviceNotFound   ErrorCode = "OUTPUT_DEVICE_NOT_FOUND"
	ErrorCodeIndexOutOfRange  ErrorCode = "GAIN_INDEX_OUT_OF_RANGE"
	ErrorCodeVolumeBlocked    ErrorCode = "VOLUME_BLOCKED"
	ErrorCodeUnmuteRefused    ErrorCode = "UNMUTE_REFUSED"
	ErrorCodeFocusRejected    ErrorCode = "FOCUS_REQUEST_FAILED"
	ErrorCodeFocusNotHeld     ErrorCode = "FOCUS_NOT_HELD"
	ErrorCodeMirrorExhausted  ErrorCode = "MIRROR_DEVICES_EXHAUSTED"
	ErrorCodeMirrorNotFound   ErrorCode = "MIRROR_REQUEST_NOT_FOUND"
	ErrorCodeInvalidUsage     ErrorCode = "INVALID_AUDIO_USAGE"
	ErrorCodeInvalidGainEvent ErrorCode = "INVALID_GAIN_EVENT"
	ErrorCodeAuthTokenExpired ErrorCode = "AUTH_TOKEN_EXPIRED"
	ErrorCodeAuthTokenInvalid ErrorCode = "AUTH_TOKEN_INVALID"
)

// ErrorType categorizes errors following Stripe API conventions.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAPIError       ErrorType = "api_error"
	ErrorTypeAuthError      ErrorType = "authentication_error"
)

// ErrorBody is the serialized error payload.
// Format: {"type": "invalid_request_error", "code": "NOT_FOUND", "message": "..."}
type ErrorBody struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// AppError is the base error type for HTTP responses.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Details    map[string]any
}

func (err *AppError) Error() string {
	return err.Message
}

func (err *AppError) ErrorBody() ErrorBody {
	errType := ErrorTypeAPIError
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		errType = ErrorTypeAuthError
	case err.StatusCode >= 400 && err.StatusCode < 500:
		errType = ErrorTypeInvalidRequest
	}
	return ErrorBody{
		Type:    errType,
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}

func NewAppError(code ErrorCode, message string, statusCode int, details map[string]any) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400, details)
}

func NewUnauthorizedError(message string, code ...ErrorCode) *AppError {
	errCode := ErrorCodeUnauthorized
	if len(code) > 0 {
		errCode = code[0]
	}
	return NewAppError(errCode, message, 401, nil)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(ErrorCodeForbidden, message, 403, nil)
}

func NewNotFoundError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

// NewNotFoundResource builds a not-found error for a named resource.
func NewNotFoundResource(resource, id string) *AppError {
	message := resource + " not found"
	details := map[string]any{
		"resource": resource,
	}
	if id != "" {
		message = resource + " not found: " + id
		details["id"] = id
	}
	return NewAppError(ErrorCodeNotFound, message, 404, details)
}

func NewConflictError(message string, details map[string]any) *AppError {
	return NewAppError(ErrorCodeConflict, message, 409, details)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500, nil)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError("Internal server error")
}
