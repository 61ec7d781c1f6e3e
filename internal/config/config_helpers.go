package config

import (
	"bytes"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// compileCUE loads and compiles a CUE file at the given path.
func compileCUE(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("invalid config: %v", err)
	}
	return v, nil
}

func requireStringField(v cue.Value, name string) error {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return fmt.Errorf("missing required field: %s", name)
	}
	if f.Kind() != cue.StringKind {
		return fmt.Errorf("invalid type for field: %s (expected string)", name)
	}
	return nil
}

func requireListField(v cue.Value, name string) error {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return fmt.Errorf("missing required field: %s", name)
	}
	if f.Kind() != cue.ListKind {
		return fmt.Errorf("invalid type for field: %s (expected list)", name)
	}
	return nil
}

func loadCUE(path string) (Pipeline, error) {
	v, err := compileCUE(path)
	if err != nil {
		return Pipeline{}, err
	}
	if err := requireStringField(v, "configVersion"); err != nil {
		return Pipeline{}, err
	}
	if err := requireListField(v, "stages"); err != nil {
		return Pipeline{}, err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Pipeline{}, fmt.Errorf("invalid config: %v", err)
	}
	var p Pipeline
	if err := v.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("invalid config: %v", err)
	}
	return p, nil
}

func loadYAML(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("failed to read config: %w", err)
	}
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Pipeline{}, fmt.Errorf("invalid config: %v", err)
	}
	if _, ok := probe["configVersion"]; !ok {
		return Pipeline{}, fmt.Errorf("missing required field: configVersion")
	}
	if _, ok := probe["configVersion"].(string); !ok {
		return Pipeline{}, fmt.Errorf("invalid type for field: configVersion (expected string)")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("invalid config: %v", err)
	}
	return p, nil
}

// EncodeYAML renders p as the YAML document Load accepts.
func EncodeYAML(p Pipeline) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
