package errutil

import (
	"errors"
	"fmt"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.messageWithErr(),
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = details }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func NotFound(msg string, options ...Option) error {
	return New(StatusNotFound, msg, options...)
}

func Conflict(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

func BadRequest(msg string, options ...Option) error {
	return New(StatusBadRequest, msg, options...)
}

func Internal(msg string, options ...Option) error {
	return New(StatusInternal, msg, options...)
}

func UnknownAction(msg string, options ...Option) error {
	return New(StatusUnknownAction, msg, options...)
}

func DuplicateSession(msg string, options ...Option) error {
	return New(StatusDuplicateSession, msg, options...)
}

func DailyCapExceeded(msg string, options ...Option) error {
	return New(StatusDailyCapExceeded, msg, options...)
}

func SessionNotFound(msg string, options ...Option) error {
	return New(StatusSessionNotFound, msg, options...)
}

func SessionNotSatisfied(msg string, options ...Option) error {
	return New(StatusSessionNotSatisfied, msg, options...)
}

func SessionTerminal(msg string, options ...Option) error {
	return New(StatusSessionTerminal, msg, options...)
}

// Is reports whether err carries the given CoreStatus.
func Is(err error, code CoreStatus) bool {
	if err == nil {
		return false
	}
	var be BaseError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
