package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kycgate/internal/capability"
)

// structured pairs a Generator with a compiled output schema. Responses that
// are not valid JSON or do not satisfy the schema are contract mismatches.
type structured struct {
	gen    Generator
	name   string
	raw    json.RawMessage
	schema *jsonschema.Schema
}

func compileSchema(name, schema string) (*structured, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://kycgate.schemas.local/llm/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("load %s schema: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &structured{name: name, raw: json.RawMessage(schema), schema: compiled}, nil
}

func (s *structured) with(gen Generator) *structured {
	cp := *s
	cp.gen = gen
	return &cp
}

func (s *structured) generate(ctx context.Context, req Request, out any) error {
	req.SchemaName = s.name
	req.Schema = s.raw
	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	text = stripFence(text)

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		schemaViolations.WithLabelValues(req.Capability).Inc()
		return capability.NewError(capability.ErrorContractMismatch, req.Capability, "response is not JSON", err)
	}
	if err := s.schema.Validate(doc); err != nil {
		schemaViolations.WithLabelValues(req.Capability).Inc()
		return capability.NewError(capability.ErrorContractMismatch, req.Capability, "response violates schema", err)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return capability.NewError(capability.ErrorBadOutput, req.Capability, "decode response", err)
	}
	return nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```json")
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
