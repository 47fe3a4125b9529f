package inference

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// responseSchema is the shape a successful engine reply must have.
const responseSchema = `{
  "type": "object",
  "required": ["risk_score", "top_factors"],
  "properties": {
    "success":    {"type": "boolean"},
    "risk_score": {"type": "number", "minimum": 0, "maximum": 100},
    "risk_level": {"type": "string"},
    "top_factors": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["feature", "shap_value"],
        "properties": {
          "feature":    {"type": "string", "minLength": 1},
          "value":      {"type": "number"},
          "impact":     {"type": "string"},
          "shap_value": {"type": "number"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompile(responseSchema)

func mustCompile(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("inference: invalid response schema: %v", err))
	}
	return s
}

// validateResponse checks body against responseSchema and returns a single
// error listing every violation.
func validateResponse(body []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("undecodable body: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return fmt.Errorf("schema violations: %s", strings.Join(errs, "; "))
}
