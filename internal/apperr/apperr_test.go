package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: Network},
		{name: "transport", err: fmt.Errorf("write: %w", ErrTransport), want: Network},
		{name: "net error", err: timeoutErr{}, want: Network},
		{name: "abnormal close", err: &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, want: Network},
		{name: "policy close", err: &websocket.CloseError{Code: websocket.ClosePolicyViolation}, want: Unauthorized},
		{name: "already classified", err: fmt.Errorf("wrapped: %w", NewRateLimited(time.Second)), want: RateLimited},
		{name: "anything else", err: errors.New("boom"), want: Generic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("post: %w", Wrap(Unauthorized, errors.New("401"), ""))
	assert.True(t, errors.Is(err, New(Unauthorized, "")))
	assert.False(t, errors.Is(err, New(Network, "")))
}

func TestValidationCarriesFields(t *testing.T) {
	err := NewValidation("content: required", "type: invalid")
	assert.Equal(t, []string{"content: required", "type: invalid"}, err.Fields)
	assert.Contains(t, err.Error(), "content: required")
}

func TestFromCode(t *testing.T) {
	assert.Equal(t, RateLimited, FromCode("rate_limited"))
	assert.Equal(t, Unauthorized, FromCode("AUTH_FAILED"))
	assert.Equal(t, Validation, FromCode("VALIDATION_ERROR"))
	assert.Equal(t, Generic, FromCode("WHATEVER"))
}

func TestUserMessageIncludesRetryAfter(t *testing.T) {
	msg := UserMessage(NewRateLimited(3 * time.Second))
	assert.Contains(t, msg, "3s")
}
