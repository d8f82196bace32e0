package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/hilthontt/bookingsync/internal/apperr"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	// Fields lists human readable field problems. Some endpoints send
	// "errors" as a field->message object instead; DecodeError folds both.
	Fields []string          `json:"fields,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	}
	_ = Write(w, status, resp)
}

// WriteAppError renders a classified error with the status its kind implies.
func WriteAppError(w http.ResponseWriter, err error) {
	appErr := apperr.Classify(err)

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.RateLimited:
		status = http.StatusTooManyRequests
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
		}
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.Network:
		status = http.StatusServiceUnavailable
	}

	_ = Write(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    string(appErr.Kind),
		Message: appErr.Message,
		Fields:  appErr.Fields,
	})
}

// DecodeError maps a non-2xx response onto the error taxonomy. The body is
// consumed but not closed.
func DecodeError(resp *http.Response) *apperr.Error {
	var body ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	cause := fmt.Errorf("%s: %s", resp.Status, string(raw))

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e := apperr.NewRateLimited(parseRetryAfter(resp.Header.Get("Retry-After")))
		e.Err = cause
		return e

	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		fields := append([]string{}, body.Fields...)
		keys := make([]string, 0, len(body.Errors))
		for k := range body.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, k+": "+body.Errors[k])
		}
		e := apperr.NewValidation(fields...)
		if msg != "" {
			e.Message = msg
		}
		e.Err = cause
		return e

	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.Unauthorized, cause, "")

	default:
		if body.Code != "" && apperr.FromCode(body.Code) != apperr.Generic {
			return apperr.Wrap(apperr.FromCode(body.Code), cause, msg)
		}
		return apperr.Wrap(apperr.Generic, cause, msg)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

var errEmptyBody = errors.New("empty body")
