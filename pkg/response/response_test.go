package response

import (
	"fmt"
	"net/http"
	"testing"

	"Attendly/pkg/errors"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.AttendanceNotConfigured, http.StatusConflict},
		{errors.Wrap(errors.UnknownUnit, "x"), http.StatusBadRequest},
		{errors.RegistrationNotFound, http.StatusNotFound},
		{errors.IdentityTokenInvalid, http.StatusBadRequest},
		{errors.IdentityTokenExpired, http.StatusGone},
		{errors.TeamFull, http.StatusConflict},
		{errors.StrategyLocked, http.StatusConflict},
		{&errors.TooManyRequests, http.StatusTooManyRequests},
		{errors.Unauthorized, http.StatusUnauthorized},
		{fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDescribeHidesInternalErrors(t *testing.T) {
	code, msg := describe(fmt.Errorf("pq: password authentication failed"))
	if code != "INTERNAL_ERROR" || msg != "Internal server error" {
		t.Fatalf("internal error leaked: %s %s", code, msg)
	}

	code, msg = describe(errors.Wrap(errors.UnknownUnit, "unit %q", "d4"))
	if code != "UNKNOWN_UNIT" {
		t.Fatalf("code = %s", code)
	}
	if msg != `Unit key does not exist for this event: unit "d4"` {
		t.Fatalf("msg = %s", msg)
	}
}
