package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamConsumed is returned when a reply stream is ranged over a second time.
var ErrStreamConsumed = errors.New("completion: stream already consumed")

// Kind classifies completion failures.
type Kind string

const (
	// KindAuth means the credential was rejected.
	KindAuth Kind = "auth"
	// KindQuota means the account is out of quota or rate limited upstream.
	KindQuota Kind = "quota"
	// KindNetwork means the request never produced a response.
	KindNetwork Kind = "network"
	// KindUpstream means the API answered with an error.
	KindUpstream Kind = "upstream"
	// KindStreamInterrupted means the reply stream broke off before completion.
	KindStreamInterrupted Kind = "stream_interrupted"
)

// Error is a typed completion failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion %s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("completion %s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" if err is not a completion error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return KindQuota
	default:
		return KindUpstream
	}
}
