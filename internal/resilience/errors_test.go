package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped fmt", fmt.Errorf("call: %w", NewTransientError(errors.New("rate"), 429)), true},
		{"wrapped eris", eris.Wrap(NewTransientError(errors.New("rate"), 429), "salesforce: query"), true},
		{"regular", errors.New("invalid input"), false},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", timeoutErr{}, true},
		{"message pattern", errors.New("read tcp: i/o timeout"), true},
		{"sf limit", errors.New("REQUEST_LIMIT_EXCEEDED: TotalRequests Limit exceeded"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestFromStatus(t *testing.T) {
	base := errors.New("upstream")

	assert.Nil(t, FromStatus(nil, 503))
	assert.Same(t, base, FromStatus(base, 400))

	err := FromStatus(base, 503)
	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.ErrorIs(t, err, base)
}
