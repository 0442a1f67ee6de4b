package tools

import (
	"encoding/json"
	"fmt"
)

// Status values used in the error payload.
const (
	StatusError = "error"
)

// Result is the outcome of a tool invocation:
// either a structured payload or an error message.
type Result struct {
	payload any
	errMsg  string
	failed  bool
}

// OK returns a successful Result with the payload.
func OK(payload any) Result {
	return Result{payload: payload}
}

// Fail returns a failed Result with the message.
func Fail(message string) Result {
	return Result{errMsg: message, failed: true}
}

// Errorf returns a failed Result with the formatted message.
func Errorf(format string, args ...any) Result {
	return Fail(fmt.Sprintf(format, args...))
}

// IsError returns true if the invocation failed.
func (r Result) IsError() bool {
	return r.failed
}

// Payload returns the payload of a successful invocation.
func (r Result) Payload() any {
	return r.payload
}

// ErrorMessage returns the message of a failed invocation.
func (r Result) ErrorMessage() string {
	return r.errMsg
}

// Value returns the structured form of the Result:
// the payload, or {"status":"error","error":"<message>"}.
func (r Result) Value() any {
	if r.failed {
		return map[string]any{
			"status": StatusError,
			"error":  r.errMsg,
		}
	}
	return r.payload
}

// JSON returns Value encoded as JSON.
func (r Result) JSON() string {
	js, err := json.Marshal(r.Value())
	if err != nil {
		js, _ = json.Marshal(Fail(err.Error()).Value())
	}
	return string(js)
}

func (r Result) String() string {
	return r.JSON()
}
