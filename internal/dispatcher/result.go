package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "template-service/internal/common/errors"
)

// Result is the outcome of a job that ran to completion. It marshals as
// {"resolve": value} or {"error": message}.
type Result struct {
	Resolve any
	Error   string
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(map[string]string{"error": r.Error})
	}
	return json.Marshal(map[string]any{"resolve": r.Resolve})
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var wire struct {
		Resolve any    `json:"resolve"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	r.Resolve, r.Error = wire.Resolve, wire.Error
	return nil
}

// Settle turns what a task returned into a job outcome. Timeouts and unit
// faults reject the job; every other error is a handled failure.
func Settle(v any, err error) (*Result, error) {
	switch {
	case err == nil:
		return &Result{Resolve: v}, nil
	case rejects(err):
		return nil, err
	}
	return &Result{Error: Message(err)}, nil
}

func rejects(err error) bool {
	return isTimeout(err) || apperrors.IsType(err, apperrors.ErrTypeUnitFault)
}

// Message is the text of an error as a job result shows it, without the
// error type prefix.
func Message(err error) string {
	var app *apperrors.AppError
	if errors.As(err, &app) {
		if app.Cause != nil {
			return fmt.Sprintf("%s: %v", app.Message, app.Cause)
		}
		return app.Message
	}
	return err.Error()
}

// Envelope is what a process unit reads from stdin.
type Envelope struct {
	JobID   string `json:"job_id"`
	Task    string `json:"task"`
	Payload any    `json:"payload"`
	// Callables lists the key paths in Payload that hold function source.
	Callables [][]string `json:"callables,omitempty"`
}

// Reply is what a process unit writes to stdout: a result, or the fault
// that rejected the job.
type Reply struct {
	Result *Result `json:"result,omitempty"`
	Fault  *Fault  `json:"fault,omitempty"`
}

// Fault carries a rejecting error across the process boundary.
type Fault struct {
	Type    apperrors.ErrorType `json:"type"`
	Message string              `json:"message"`
}

// NewReply builds the reply for a task outcome.
func NewReply(v any, err error) Reply {
	res, err := Settle(v, err)
	if err != nil {
		typ := apperrors.GetType(err)
		if !apperrors.IsType(err, apperrors.ErrTypeUnitFault) && errors.Is(err, context.DeadlineExceeded) {
			typ = apperrors.ErrTypeTimeout
		}
		return Reply{Fault: &Fault{Type: typ, Message: Message(err)}}
	}
	return Reply{Result: res}
}

// Err restores a fault as an error of the same type.
func (f *Fault) Err() error {
	return &apperrors.AppError{Type: f.Type, Message: f.Message}
}
