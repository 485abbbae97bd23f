package agent

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fastgate/fastgate/internal/schema"
)

// validatorSet holds the compiled argument schemas for one registry snapshot.
// Compilation happens once per ListTools fetch, not per tool call. A tool
// with an empty or malformed schema gets no validator and accepts anything;
// the server stays the authority on its own arguments.
type validatorSet struct {
	byName map[string]*jsonschema.Schema
}

func newValidatorSet(tools *schema.ToolSet) *validatorSet {
	vs := &validatorSet{byName: make(map[string]*jsonschema.Schema, tools.Len())}
	for _, desc := range tools.All() {
		if len(bytes.TrimSpace(desc.InputSchema)) == 0 {
			continue
		}
		compiled, err := jsonschema.CompileString(desc.Name+".schema.json", string(desc.InputSchema))
		if err != nil {
			continue
		}
		vs.byName[desc.Name] = compiled
	}
	return vs
}

// validate checks a tool call's arguments against the tool's compiled schema.
// The returned error describes the violation in text suitable for feeding
// back to the model as a failed tool result.
func (vs *validatorSet) validate(name string, args map[string]any) error {
	compiled, ok := vs.byName[name]
	if !ok {
		return nil
	}

	// Round-trip through JSON so numbers and nested values take the
	// generic forms the validator expects.
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments not serialisable: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("arguments not valid JSON: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("arguments do not match schema for %s: %w", name, err)
	}
	return nil
}
