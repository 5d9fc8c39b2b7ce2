package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
)

// providerErrorBody covers the two error shapes OAuth providers return:
// RFC 6749 style ("error", "error_description") and the Twitter v1.1
// "errors" array.
type providerErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Errors           []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// ParseResponseError reads the body of a non-2xx provider response and
// translates it into an AppError. The provider's own error code is kept.
// 4xx responses mean the caller's token, code or verifier was rejected and
// map to 401; everything else maps to 502. The body is consumed and closed.
func ParseResponseError(resp *http.Response, provider string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", provider, resp.StatusCode, err)
	}

	code, message := "HTTP_" + strconv.Itoa(resp.StatusCode), string(bodyBytes)
	var body providerErrorBody
	if json.Unmarshal(bodyBytes, &body) == nil {
		switch {
		case body.Error != "":
			code, message = body.Error, body.ErrorDescription
		case len(body.Errors) > 0:
			code, message = strconv.Itoa(body.Errors[0].Code), body.Errors[0].Message
		case body.Message != "":
			message = body.Message
		}
	}

	return mapProviderError(resp.StatusCode, code, message, provider)
}

func mapProviderError(status int, code, message, provider string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", provider, message)

	switch {
	case status == http.StatusTooManyRequests:
		return apperrors.Upstream(code, qualifiedMsg, nil)
	case IsClientError(status):
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  http.StatusUnauthorized,
			Err:     apperrors.ErrUnauthorized,
		}
	default:
		return apperrors.Upstream(code, qualifiedMsg, nil)
	}
}

// Classify turns a transport-level failure from a provider call into an
// AppError: an open breaker becomes 503, a 5xx becomes 502.
func Classify(err error, provider string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrCircuitOpen) {
		return apperrors.ServiceUnavailable(provider + " is temporarily unavailable")
	}
	var srvErr *ServerError
	if errors.As(err, &srvErr) {
		return apperrors.Upstream("HTTP_"+strconv.Itoa(srvErr.Status), provider+" server error", err)
	}
	return apperrors.Upstream("PROVIDER_UNREACHABLE", provider+" request failed", err)
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
