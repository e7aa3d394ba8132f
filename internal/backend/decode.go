package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/stemsi/cbt-gateway/internal/model"
)

// Every backend response passes through decode exactly once. A body that
// does not match the canonical type is rejected here instead of being probed
// for alternative field names further down.

type loginResponse struct {
	Token     string          `json:"token" validate:"required"`
	Candidate model.Candidate `json:"user" validate:"required"`
}

type questionsResponse struct {
	Questions []model.Question `json:"questions" validate:"required,dive"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func newValidator() *govalidator.Validate {
	v := govalidator.New(govalidator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c *Client) decode(r io.Reader, dst interface{}) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// checkOrdinals enforces that each question numbers its options 1..4 once.
func checkOrdinals(questions []model.Question) error {
	for i, q := range questions {
		var seen [model.OptionsPerQuestion + 1]bool
		for _, o := range q.Options {
			if seen[o.Ordinal] {
				return fmt.Errorf("%w: question %d repeats option ordinal %d", ErrUnexpectedResponse, i, o.Ordinal)
			}
			seen[o.Ordinal] = true
		}
	}
	return nil
}
