package v1

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/elnormous/contenttype"
	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/autotask/internal/errors"
	"github.com/hrygo/autotask/server/internal/observability"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error. Extractions report failures in the same
// shape.
type ErrorDetail = apperrors.Detail

// NewErrorBody converts err into the response body and status.
func NewErrorBody(err error) (int, ErrorBody) {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.HTTPStatus(), ErrorBody{Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Context,
		}}
	}
	var httpErr *echo.HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr.Code, ErrorBody{Error: ErrorDetail{
			Code:    codeForStatus(httpErr.Code),
			Message: http.StatusText(httpErr.Code),
		}}
	}
	return http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
		Code:    apperrors.ErrCodeInternal,
		Message: "internal error",
	}}
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrCodeUnauthorized
	case http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return apperrors.ErrCodeRateLimitExceeded
	case http.StatusRequestEntityTooLarge:
		return apperrors.ErrCodePayloadTooLarge
	}
	if status >= 400 && status < 500 {
		return apperrors.ErrCodeInvalidArgument
	}
	return apperrors.ErrCodeInternal
}

// writeError logs err and writes it as JSON.
func writeError(c echo.Context, err error) error {
	status, body := NewErrorBody(err)
	logger := observability.Logger(c.Request().Context())
	attrs := []slog.Attr{
		slog.String(observability.LogFieldErrorCode, string(body.Error.Code)),
		slog.Int(observability.LogFieldStatus, status),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", err, attrs...)
	} else {
		logger.Debug("request rejected", append(attrs, slog.String("error", err.Error()))...)
	}
	return c.JSON(status, body)
}

// HTTPErrorHandler renders errors escaping handlers and middleware.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if writeErr := writeError(c, err); writeErr != nil {
		slog.Error("failed to write error response", slog.String("error", writeErr.Error()))
	}
}

// bindJSON decodes a JSON body into v. An empty body leaves v untouched.
func bindJSON(c echo.Context, v any) error {
	r := c.Request()
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	mt, err := contenttype.GetMediaType(r)
	if err != nil || !mt.Matches(jsonMediaType) {
		return apperrors.InvalidArgument("content type must be application/json")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidArgument("malformed JSON body")
	}
	return nil
}
