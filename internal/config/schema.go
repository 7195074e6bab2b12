// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://taskmaster.dev/schemas/config.schema.json"

var (
	compiledOnce sync.Once
	compiled     *jschema.Schema
	compileErr   error
)

// GenerateSchema returns the JSON Schema for the config file.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "TaskMaster configuration"
	schema.Description = "Schema for config.yaml"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

func compiledSchema() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		var raw []byte
		raw, compileErr = GenerateSchema()
		if compileErr != nil {
			return
		}
		var doc any
		doc, compileErr = jschema.UnmarshalJSON(bytes.NewReader(raw))
		if compileErr != nil {
			return
		}
		c := jschema.NewCompiler()
		if compileErr = c.AddResource(SchemaID, doc); compileErr != nil {
			return
		}
		compiled, compileErr = c.Compile(SchemaID)
	})
	if compileErr != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "compile schema").Wrap(compileErr)
	}
	return compiled, nil
}

// ValidateYAML checks a config file body against the schema.
func ValidateYAML(data []byte) error {
	var parsed any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return oops.Code(CodeInvalid).With("operation", "parse yaml").Wrap(err)
	}
	if parsed == nil {
		return nil
	}

	// Round-trip through JSON so numbers and maps take the schema's types.
	asJSON, err := json.Marshal(parsed)
	if err != nil {
		return oops.Code(CodeInvalid).With("operation", "convert yaml").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return oops.Code(CodeInvalid).With("operation", "convert yaml").Wrap(err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(CodeInvalid).With("operation", "validate schema").Wrap(err)
	}
	return nil
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_DUMP_FAILED").Wrap(err)
	}
	return out, nil
}
