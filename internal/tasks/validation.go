package tasks

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries one message per offending JSON field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// CreateRequest is the POST /tasks body.
type CreateRequest struct {
	Title       string  `json:"title" validate:"notblank,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Deadline    int     `json:"deadline" validate:"gte=0"`
	Duration    float64 `json:"duration" validate:"gt=0,lte=8760"`
	Importance  float64 `json:"importance" validate:"gte=0,lte=1"`
	Stress      float64 `json:"stress" validate:"gte=0,lte=1"`
	Fun         float64 `json:"fun" validate:"gte=0,lte=1"`
	PenaltyLate float64 `json:"penalty_late" validate:"gte=0,lte=1"`
	Status      string  `json:"status" validate:"omitempty,oneof=backlog doing done"`
}

// UpdateRequest is the PATCH /tasks/{id} body.
type UpdateRequest struct {
	Title       *string  `json:"title" validate:"omitnil,notblank,max=200"`
	Description *string  `json:"description" validate:"omitnil,max=5000"`
	Deadline    *int     `json:"deadline" validate:"omitnil,gte=0"`
	Duration    *float64 `json:"duration" validate:"omitnil,gt=0,lte=8760"`
	Importance  *float64 `json:"importance" validate:"omitnil,gte=0,lte=1"`
	Stress      *float64 `json:"stress" validate:"omitnil,gte=0,lte=1"`
	Fun         *float64 `json:"fun" validate:"omitnil,gte=0,lte=1"`
	PenaltyLate *float64 `json:"penalty_late" validate:"omitnil,gte=0,lte=1"`
}

// Validator wraps go-playground/validator with JSON field names.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Validator{v: v}
}

// Draft validates the request and converts it. Text fields are trimmed.
func (val *Validator) Draft(req CreateRequest) (Draft, error) {
	if err := val.check(req); err != nil {
		return Draft{}, err
	}

	status := StatusBacklog
	if req.Status != "" {
		status = Status(req.Status)
	}

	return Draft{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Deadline:    req.Deadline,
		Duration:    req.Duration,
		Importance:  req.Importance,
		Stress:      req.Stress,
		Fun:         req.Fun,
		PenaltyLate: req.PenaltyLate,
		Status:      status,
	}, nil
}

func (val *Validator) Patch(req UpdateRequest) (Patch, error) {
	if err := val.check(req); err != nil {
		return Patch{}, err
	}

	p := Patch{
		Deadline:    req.Deadline,
		Duration:    req.Duration,
		Importance:  req.Importance,
		Stress:      req.Stress,
		Fun:         req.Fun,
		PenaltyLate: req.PenaltyLate,
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		p.Title = &t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		p.Description = &d
	}
	return p, nil
}

func (val *Validator) check(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = fieldMessage(fe)
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return "must not be empty"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
