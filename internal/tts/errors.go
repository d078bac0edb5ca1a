package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	tcerr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"google.golang.org/genai"
)

// ErrorKind classifies why a synthesis request failed.
type ErrorKind string

const (
	UnsupportedProvider ErrorKind = "unsupported_provider"
	InvalidRequest      ErrorKind = "invalid_request"
	MissingCredentials  ErrorKind = "missing_credentials"
	AuthRejected        ErrorKind = "auth_rejected"
	ModelNotFound       ErrorKind = "model_not_found"
	PermissionDenied    ErrorKind = "permission_denied"
	QuotaOrRateLimited  ErrorKind = "quota_or_rate_limited"
	ProxyExhausted      ErrorKind = "proxy_exhausted"
	NoAudioInResponse   ErrorKind = "no_audio_in_response"
	EmptyAudio          ErrorKind = "empty_audio"
	NetworkFailure      ErrorKind = "network_failure"
	InternalError       ErrorKind = "internal_error"
)

// HTTPStatus is the status a transport layer should answer with for k.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case UnsupportedProvider, InvalidRequest, MissingCredentials:
		return http.StatusBadRequest
	case AuthRejected:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case ModelNotFound:
		return http.StatusNotFound
	case QuotaOrRateLimited:
		return http.StatusTooManyRequests
	case NetworkFailure:
		return http.StatusGatewayTimeout
	case NoAudioInResponse, EmptyAudio, ProxyExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is the failure side of a dispatch.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind carried by err, InternalError for untyped errors
// and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// KindFromStatus maps an upstream HTTP status to a kind.
func KindFromStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return AuthRejected
	case http.StatusForbidden:
		return PermissionDenied
	case http.StatusNotFound:
		return ModelNotFound
	case http.StatusTooManyRequests:
		return QuotaOrRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return NetworkFailure
	default:
		return InternalError
	}
}

// classifyUpstream turns an error from an SDK or HTTP call into a typed
// Error. Already-typed errors are returned unchanged.
func classifyUpstream(provider string, err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	msg := provider + " request failed"

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		if kind := KindFromStatus(apiErr.HTTPStatusCode); kind != InternalError {
			return newError(kind, msg, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		if kind := KindFromStatus(reqErr.HTTPStatusCode); kind != InternalError {
			return newError(kind, msg, err)
		}
	}
	if code := genaiStatus(err); code != 0 {
		if kind := KindFromStatus(code); kind != InternalError {
			return newError(kind, msg, err)
		}
	}
	var tcErr *tcerr.TencentCloudSDKError
	if errors.As(err, &tcErr) {
		if kind := kindFromTencentCode(tcErr.GetCode()); kind != InternalError {
			return newError(kind, msg, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(NetworkFailure, msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(NetworkFailure, msg, err)
	}

	return newError(kindFromMessage(err.Error()), msg, err)
}

// genaiStatus extracts the HTTP code from a genai API error, which the SDK
// returns by value.
func genaiStatus(err error) int {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code
	}
	return 0
}

// kindFromMessage matches phrases upstream SDKs put in their error text.
func kindFromMessage(s string) ErrorKind {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "incorrect api key"),
		strings.Contains(s, "api key not valid"),
		strings.Contains(s, "invalid api key"),
		strings.Contains(s, "unauthenticated"),
		strings.Contains(s, "401"):
		return AuthRejected
	case strings.Contains(s, "permission denied"),
		strings.Contains(s, "permission_denied"),
		strings.Contains(s, "403"):
		return PermissionDenied
	case strings.Contains(s, "was not found"),
		strings.Contains(s, "not_found"),
		strings.Contains(s, "404"):
		return ModelNotFound
	case strings.Contains(s, "quota"),
		strings.Contains(s, "rate limit"),
		strings.Contains(s, "resource_exhausted"),
		strings.Contains(s, "too many requests"),
		strings.Contains(s, "429"):
		return QuotaOrRateLimited
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "no such host"):
		return NetworkFailure
	}
	return InternalError
}

func kindFromTencentCode(code string) ErrorKind {
	switch {
	case strings.HasPrefix(code, "AuthFailure"):
		return AuthRejected
	case strings.HasPrefix(code, "UnauthorizedOperation"):
		return PermissionDenied
	case strings.HasPrefix(code, "RequestLimitExceeded"),
		strings.HasPrefix(code, "LimitExceeded"),
		strings.HasPrefix(code, "ResourceInsufficient"),
		strings.HasPrefix(code, "UnsupportedOperation.PkgExhausted"):
		return QuotaOrRateLimited
	case strings.HasPrefix(code, "ResourceNotFound"):
		return ModelNotFound
	}
	return InternalError
}
