package workflows

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	vm "meridian/internal/domain/models/video"
)

// buildAnalysisSchema compiles a JSON Schema from the LLM-declared schema
// fields plus the three sections every dynamic analysis always requires
// (spec.md §4.6.2), grounded on goadesign-goa-ai's registry/service.go
// validatePayloadJSONAgainstSchema pattern (NewCompiler/AddResource/Compile).
func buildAnalysisSchema(fields []vm.SchemaField) (*jsonschema.Schema, error) {
	properties := map[string]interface{}{
		"tldr":                    map[string]interface{}{"type": "string"},
		"detailed_summary":        map[string]interface{}{"type": "string"},
		"transcript_corrections":  map[string]interface{}{"type": "string"},
	}
	required := []string{"tldr", "detailed_summary", "transcript_corrections"}

	for _, f := range fields {
		properties[f.Key] = jsonSchemaTypeFor(f.Type)
		required = append(required, f.Key)
	}

	schemaDoc := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": true,
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("analysis.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("analysis.json")
	if err != nil {
		return nil, fmt.Errorf("compile analysis schema: %w", err)
	}
	return schema, nil
}

func jsonSchemaTypeFor(kind vm.SectionKind) map[string]interface{} {
	switch kind {
	case vm.SectionKindStringArray:
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	case vm.SectionKindObject:
		return map[string]interface{}{"type": "object"}
	default:
		return map[string]interface{}{"type": "string"}
	}
}

// validateAnalysis checks a flattened analysis document (the three fixed
// sections plus every declared schema-field key) against the compiled
// schema. A failure here is fatal (spec.md §7: "schema-validation failure").
func validateAnalysis(schema *jsonschema.Schema, analysis map[string]interface{}) error {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis document: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal analysis document: %w", err)
	}
	return schema.Validate(doc)
}
