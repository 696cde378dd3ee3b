package errutil

import "net/http"

type CoreStatus string

const (
	StatusBadRequest CoreStatus = "BAD_REQUEST"
	StatusNotFound   CoreStatus = "NOT_FOUND"
	StatusConflict   CoreStatus = "CONFLICT"
	StatusInternal   CoreStatus = "INTERNAL"

	StatusUnknownAction       CoreStatus = "UNKNOWN_ACTION"
	StatusDuplicateSession    CoreStatus = "DUPLICATE_SESSION"
	StatusDailyCapExceeded    CoreStatus = "DAILY_CAP_EXCEEDED"
	StatusSessionNotFound     CoreStatus = "SESSION_NOT_FOUND"
	StatusSessionNotSatisfied CoreStatus = "SESSION_NOT_SATISFIED"
	StatusSessionTerminal     CoreStatus = "SESSION_TERMINAL"
)

// HTTPStatus maps the CoreStatus to its transport-level status code.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusBadRequest, StatusUnknownAction:
		return http.StatusBadRequest
	case StatusNotFound, StatusSessionNotFound:
		return http.StatusNotFound
	case StatusConflict, StatusDuplicateSession, StatusSessionNotSatisfied:
		return http.StatusConflict
	case StatusSessionTerminal:
		return http.StatusGone
	case StatusDailyCapExceeded:
		return http.StatusTooManyRequests
	case StatusInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
