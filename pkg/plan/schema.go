package plan

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var schema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid plan schema: %v", err))
	}
	schema = s
}

// ValidationError lists every schema violation found in a plan.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid plan:\n- %s", strings.Join(e.Errors, "\n- "))
}

// Validate checks a decoded plan document against the plan schema.
func Validate(doc map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.Wrap(err, "validating plan")
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{}
	for _, re := range result.Errors() {
		// ResultError.String() is "<field>: <description>"
		ve.Errors = append(ve.Errors, re.String())
	}
	return ve
}
