package render

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"template-service/internal/common/errors"
)

// Rendering methods.
const (
	MethodStatic  = "static"
	MethodDynamic = "dynamic"
)

// methodKey is the render property that selects the method. It is
// rendered like any other property.
const methodKey = "renderingMethod"

// privateKey is stripped from every context.
const privateKey = "_private"

// Job is a decoded render payload.
type Job struct {
	// Render is a template string or a map of named fragments. An empty
	// string is valid and renders to "".
	Render any `json:"render" yaml:"render" validate:"required,renderable"`
	// Context is what templates can see.
	Context map[string]any `json:"context" yaml:"context"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("renderable", func(fl validator.FieldLevel) bool {
		k := fl.Field().Kind()
		return k == reflect.String || k == reflect.Map
	})
	return v
}

// ParseJob reads a job out of a dispatcher payload.
func ParseJob(payload map[string]any) (*Job, error) {
	if payload == nil {
		return nil, errors.ValidationError("render payload is empty")
	}
	job := &Job{Render: payload["render"]}
	switch c := payload["context"].(type) {
	case nil:
		job.Context = map[string]any{}
	case map[string]any:
		job.Context = c
	default:
		return nil, errors.ValidationError(fmt.Sprintf("render context must be an object, got %T", c))
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks that the job has something to render.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return errors.ValidationError("invalid render job: " + strings.Join(msgs, ", "))
	}
	return nil
}

// Method returns the rendering method named by the job, defaulting to
// static.
func (j *Job) Method() string {
	if m, ok := j.Render.(map[string]any); ok {
		if s, ok := m[methodKey].(string); ok && s != "" {
			return s
		}
	}
	return MethodStatic
}
