package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
)

func makeResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseResponseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		code     string
		httpCode int
		sentinel error
	}{
		{
			name:     "oauth2 invalid grant",
			status:   http.StatusBadRequest,
			body:     `{"error":"invalid_grant","error_description":"authorization code expired"}`,
			code:     "invalid_grant",
			httpCode: http.StatusUnauthorized,
			sentinel: apperrors.ErrUnauthorized,
		},
		{
			name:     "twitter errors array",
			status:   http.StatusUnauthorized,
			body:     `{"errors":[{"code":89,"message":"Invalid or expired token."}]}`,
			code:     "89",
			httpCode: http.StatusUnauthorized,
			sentinel: apperrors.ErrUnauthorized,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"errors":[{"code":88,"message":"Rate limit exceeded"}]}`,
			code:     "88",
			httpCode: http.StatusBadGateway,
			sentinel: apperrors.ErrUpstream,
		},
		{
			name:     "unstructured body",
			status:   http.StatusForbidden,
			body:     `Forbidden`,
			code:     "HTTP_403",
			httpCode: http.StatusUnauthorized,
			sentinel: apperrors.ErrUnauthorized,
		},
		{
			name:     "server error",
			status:   http.StatusServiceUnavailable,
			body:     `{"message":"maintenance"}`,
			code:     "HTTP_503",
			httpCode: http.StatusBadGateway,
			sentinel: apperrors.ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ParseResponseError(makeResponse(tt.status, tt.body), "line")

			var appErr *apperrors.AppError
			require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.httpCode, appErr.Status)
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.True(t, strings.HasPrefix(appErr.Message, "line: "))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil, "twitter"))

	open := Classify(fmt.Errorf("get: %w", ErrCircuitOpen), "twitter")
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(open))

	srv := Classify(&ServerError{Provider: "twitter", Status: 500}, "twitter")
	var appErr *apperrors.AppError
	require.True(t, errors.As(srv, &appErr))
	assert.Equal(t, "HTTP_500", appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)

	already := apperrors.Gone("expired")
	assert.Same(t, already, Classify(already, "twitter"))

	other := Classify(errors.New("dial tcp: refused"), "line")
	assert.True(t, errors.Is(other, apperrors.ErrUpstream))
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
