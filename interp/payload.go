package interp

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wippyai/uibridge/errors"
)

// Payload is the initial state supplied by the hosting page.
type Payload struct {
	// Name labels the source in diagnostics, e.g. app.star.
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Source   string   `json:"source" yaml:"source"`
	Root     string   `json:"root" yaml:"root"`
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty"`
}

const payloadSchemaURL = "https://uibridge.local/schemas/payload.schema.json"

const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["source", "root"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "source": {"type": "string"},
    "root": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
    "packages": {
      "type": "array",
      "uniqueItems": true,
      "items": {"type": "string", "pattern": "^[A-Za-z0-9_.\\-/]+(@.+)?$"}
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func payloadValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(payloadSchemaURL, strings.NewReader(payloadSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(payloadSchemaURL)
	})
	return compiledSchema, schemaErr
}

// ParsePayload decodes and validates a JSON payload.
func ParsePayload(data []byte) (Payload, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, errors.ParseFailed("payload", err)
	}

	sch, err := payloadValidator()
	if err != nil {
		return Payload{}, errors.Load("payload schema", err)
	}
	if err := sch.Validate(raw); err != nil {
		return Payload{}, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Detail("payload does not match schema").
			Cause(err).
			Build()
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, errors.ParseFailed("payload", err)
	}
	return p, nil
}

// LoadPayload reads a JSON payload from r.
func LoadPayload(r io.Reader) (Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Payload{}, errors.Load("read payload", err)
	}
	return ParsePayload(data)
}

// Validate checks the fields a runtime needs.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Root) == "" {
		return errors.InvalidInput(errors.PhaseLoad, "payload has no root component")
	}
	for _, req := range p.Packages {
		if name, _ := ParseRequirement(req); name == "" {
			return errors.InvalidInput(errors.PhaseLoad, fmt.Sprintf("invalid package requirement %q", req))
		}
	}
	return nil
}

// ParseRequirement splits "name@constraint" into its parts. The
// constraint is empty when the requirement names no version.
func ParseRequirement(req string) (name, constraint string) {
	req = strings.TrimSpace(req)
	if i := strings.IndexByte(req, '@'); i >= 0 {
		return strings.TrimSpace(req[:i]), strings.TrimSpace(req[i+1:])
	}
	return req, ""
}
