package service

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authz/internal/authz/domain"
	"github.com/aussiebroadwan/authz/internal/authz/exchangecode"
	"github.com/aussiebroadwan/authz/internal/authz/platform"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
)

// Error is a client visible failure with a stable code.
type Error struct {
	Code    string
	Status  int
	Message string

	err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.err }

// Is matches any *Error with the same code, so wrapped and re-messaged
// errors still compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying msg.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: msg, err: e.err}
}

func newError(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	ErrUnsupportedGrantType       = newError("UnsupportedGrantType", http.StatusBadRequest, "unsupported grant type")
	ErrUnsupportedResponseType    = newError("UnsupportedResponseType", http.StatusBadRequest, "unsupported response type")
	ErrMismatchClientID           = newError("MismatchClientId", http.StatusBadRequest, "mismatch client id")
	ErrMissingIdentityName        = newError("MissingIdentityName", http.StatusBadRequest, "missing identity name")
	ErrMissingClientID            = newError("MissingClientId", http.StatusBadRequest, "missing client id")
	ErrMissingSubject             = newError("MissingSubject", http.StatusBadRequest, "missing subject")
	ErrInvalidClientCredentials   = newError("InvalidClientCredentials", http.StatusUnauthorized, "invalid client credentials")
	ErrExpiredCode                = newError("ExpiredCode", http.StatusBadRequest, "expired code")
	ErrExpiredToken               = newError("ExpiredToken", http.StatusUnauthorized, "expired token")
	ErrInvalidToken               = newError("InvalidToken", http.StatusUnauthorized, "invalid token")
	ErrTokenClaimValidationFailed = newError("TokenClaimValidationFailed", http.StatusUnauthorized, "token claim validation failed")
	ErrTokenVerificationFailed    = newError("TokenVerificationFailed", http.StatusInternalServerError, "token verification failed")
	ErrUnauthorized               = newError("Unauthorized", http.StatusUnauthorized, "unauthorized")
	ErrBadRequest                 = newError("BadRequest", http.StatusBadRequest, "bad request")
	ErrQuotaExceeded              = newError("QuotaExceeded", http.StatusTooManyRequests, "usage quota exceeded")
	ErrInternal                   = newError("InternalServerError", http.StatusInternalServerError, "internal server error")
)

// sentinels maps errors of the lower layers onto the taxonomy. Order matters
// only where one error wraps another.
var sentinels = []struct {
	from error
	to   *Error
}{
	{exchangecode.ErrUnsupportedResponseType, ErrUnsupportedResponseType},
	{exchangecode.ErrExpiredCode, ErrExpiredCode},
	{exchangecode.ErrMissingIdentityName, ErrMissingIdentityName},
	{exchangecode.ErrMissingClientID, ErrMissingClientID},
	{exchangecode.ErrMismatchClientID, ErrMismatchClientID},
	{exchangecode.ErrMissingCode, ErrBadRequest},
	{jwtx.ErrExpired, ErrExpiredToken},
	{jwtx.ErrInvalid, ErrInvalidToken},
	{jwtx.ErrClaimValidationFailed, ErrTokenClaimValidationFailed},
	{jwtx.ErrVerificationFailed, ErrTokenVerificationFailed},
	{session.ErrMissingTokenID, ErrInvalidToken},
	{platform.ErrQuotaExceeded, ErrQuotaExceeded},
	{platform.ErrAccountNotOwned, ErrBadRequest},
	{platform.ErrInvalidPersonaData, ErrBadRequest},
	{platform.ErrUnknownIdentity, ErrBadRequest},
	{domain.ErrInvalidURN, ErrBadRequest},
}

// mapError translates err into an *Error when it belongs to the taxonomy.
// Anything else is returned unchanged and treated as internal by callers.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	for _, s := range sentinels {
		if errors.Is(err, s.from) {
			return &Error{Code: s.to.Code, Status: s.to.Status, Message: s.to.Message, err: err}
		}
	}
	return err
}
