package http

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/horike37/serverless-application/pkg/errors"
	"github.com/horike37/serverless-application/pkg/httputil"
	"github.com/horike37/serverless-application/pkg/validator"
	"github.com/horike37/serverless-application/services/user/internal/identity"
)

// writeError renders err. Identity provider failures other than a missing
// user surface as 502 with the provider's own code.
func writeError(w http.ResponseWriter, r *http.Request, err error, l *slog.Logger) {
	var pe *identity.ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case identity.KindUserNotFound:
			err = apperrors.Wrap(apperrors.ErrNotFound, pe.Error())
		default:
			err = apperrors.Upstream(pe.Code, pe.Message, pe)
		}
	}
	httputil.WriteError(w, r, err, l)
}

// writeDecodeError renders a DecodeAndValidate failure. Malformed JSON is
// reported as invalid input.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error, l *slog.Logger) {
	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		err = apperrors.InvalidInput("invalid request body")
	}
	httputil.WriteError(w, r, err, l)
}
