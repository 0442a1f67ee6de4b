package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpconverse/pkg/schema"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names, as the model sees them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// RunFunc is the typed implementation of a Func tool.
type RunFunc[I any, O any] func(ctx context.Context, input *I) (*O, error)

// Func is a Tool backed by a typed Go function,
// the input schema is reflected from I.
type Func[I any, O any] struct {
	name        string
	description string
	params      map[string]any
	run         RunFunc[I, O]
}

var _ Tool = (*Func[struct{}, struct{}])(nil)

// NewFunc returns a Tool that decodes the arguments into I and calls run.
func NewFunc[I any, O any](name, description string, run RunFunc[I, O]) (*Func[I, O], error) {
	sc, err := schema.For[I]()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create schema for %s", name)
	}
	return &Func[I, O]{
		name:        name,
		description: description,
		params:      sc.Map(),
		run:         run,
	}, nil
}

func (t *Func[I, O]) Name() string {
	return t.name
}

func (t *Func[I, O]) Description() string {
	return t.description
}

func (t *Func[I, O]) InputSchema() map[string]any {
	return t.params
}

// Run calls the typed function.
func (t *Func[I, O]) Run(ctx context.Context, input *I) (*O, error) {
	return t.run(ctx, input)
}

// Invoke implements Tool.
func (t *Func[I, O]) Invoke(ctx context.Context, args map[string]any) Result {
	input, err := DecodeArgs[I](args)
	if err != nil {
		return Fail(err.Error())
	}
	out, err := t.run(ctx, input)
	if err != nil {
		return Fail(err.Error())
	}
	return OK(out)
}

// DecodeArgs converts generic JSON arguments into I,
// and validates the result with the `validate` struct tags.
func DecodeArgs[I any](args map[string]any) (*I, error) {
	input := new(I)
	if len(args) > 0 {
		js, err := json.Marshal(args)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal arguments")
		}
		if err = json.Unmarshal(js, input); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal arguments")
		}
	}
	if err := Validate(input); err != nil {
		return nil, err
	}
	return input, nil
}

// Validate checks the `validate` struct tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "failed to validate arguments")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fe.Field()+" is required")
		} else {
			msgs = append(msgs, fe.Field()+" failed on the '"+fe.Tag()+"' rule")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
