package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: &AppError{Type: ErrTypeConfig, Message: "configuration is invalid"},
			want:     "config: configuration is invalid",
		},
		{
			name:     "error with code",
			appError: &AppError{Type: ErrTypeAuth, Message: "bad key", Code: "AUTH001"},
			want:     "authentication: bad key: code=AUTH001",
		},
		{
			name:     "error with cause",
			appError: &AppError{Type: ErrTypeUnitFault, Message: "unit exited", Cause: stderrors.New("exit status 2")},
			want:     "unit_fault: unit exited: cause=exit status 2",
		},
		{
			name: "context keys are sorted",
			appError: &AppError{
				Type:    ErrTypeTimeout,
				Message: "timeout during render",
				Context: map[string]interface{}{"unit": "u1", "after": "15s"},
			},
			want: "timeout: timeout during render: context={after=15s, unit=u1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := stderrors.New("boom")

	assert.Equal(t, ErrTypeValidation, ValidationError("x").Type)
	assert.Equal(t, "render not found", NotFoundError("render").Message)
	assert.Equal(t, "timeout during job", TimeoutError("job").Message)
	assert.Equal(t, ErrTypeRender, RenderError("bad template", cause).Type)
	assert.Equal(t, ErrTypeTransfer, TransferError("torn down", cause).Type)
	assert.ErrorIs(t, UnitFaultError("crash", cause), cause)
}

func TestIsTypeAndGetType(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", TimeoutError("render"))

	assert.True(t, IsType(wrapped, ErrTypeTimeout))
	assert.False(t, IsType(wrapped, ErrTypeUnitFault))
	assert.False(t, IsType(nil, ErrTypeTimeout))

	assert.Equal(t, ErrTypeTimeout, GetType(wrapped))
	assert.Equal(t, ErrTypeInternal, GetType(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestWithContextAndCode(t *testing.T) {
	err := InternalError("failed", nil).WithContext("task", "render").WithCode("E1")
	assert.Equal(t, "render", err.Context["task"])
	assert.Equal(t, "E1", err.Code)
}
