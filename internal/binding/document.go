package binding

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/profile.schema.json
var profileSchemaJSON []byte

const profileSchemaURL = "https://razerkbd.invalid/schema/profile.schema.json"

var (
	profileSchema     *jsonschema.Schema
	profileSchemaErr  error
	profileSchemaOnce sync.Once
)

func compiledSchema() (*jsonschema.Schema, error) {
	profileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(profileSchemaURL, bytes.NewReader(profileSchemaJSON)); err != nil {
			profileSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		profileSchema, profileSchemaErr = compiler.Compile(profileSchemaURL)
	})
	return profileSchema, profileSchemaErr
}

// DecodeProfile parses and validates a profile document.
func DecodeProfile(data []byte) (Profile, error) {
	schema, err := compiledSchema()
	if err != nil {
		return Profile{}, fmt.Errorf("compile profile schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return Profile{}, fmt.Errorf("profile document: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	for i := range p.Maps {
		if p.Maps[i].Bindings == nil {
			p.Maps[i].Bindings = map[uint16][]Action{}
		}
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// EncodeProfile renders a profile document.
func EncodeProfile(p Profile) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
