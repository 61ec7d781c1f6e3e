package stage

import (
	"fmt"
	"path/filepath"
)

// Descriptor defines one stage: where it runs, what it runs, and in which
// isolated environment. Values are never mutated after construction.
type Descriptor struct {
	Name             string   `json:"name" yaml:"name"`
	WorkingDirectory string   `json:"dir" yaml:"dir"`
	EntryScript      string   `json:"script" yaml:"script"`
	EnvironmentName  string   `json:"env" yaml:"env"`
	ExtraArgs        []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// DisplayName returns Name, falling back to the working directory base name.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return filepath.Base(d.WorkingDirectory)
}

// WithArgs returns a copy of d with args appended to ExtraArgs.
func (d Descriptor) WithArgs(args ...string) Descriptor {
	out := d
	out.ExtraArgs = make([]string, 0, len(d.ExtraArgs)+len(args))
	out.ExtraArgs = append(out.ExtraArgs, d.ExtraArgs...)
	out.ExtraArgs = append(out.ExtraArgs, args...)
	return out
}

// ScriptPath returns the entry script resolved against the working directory.
func (d Descriptor) ScriptPath() string {
	if filepath.IsAbs(d.EntryScript) {
		return d.EntryScript
	}
	return filepath.Join(d.WorkingDirectory, d.EntryScript)
}

// Argv returns the child argument vector after the executable.
func (d Descriptor) Argv() []string {
	argv := make([]string, 0, 1+len(d.ExtraArgs))
	argv = append(argv, d.EntryScript)
	return append(argv, d.ExtraArgs...)
}

// Table is the ordered stage list. Its order is the execution order.
type Table []Descriptor

// Validate reports the first structurally invalid descriptor.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("stage table is empty")
	}
	seen := map[string]int{}
	for i, d := range t {
		if d.WorkingDirectory == "" {
			return fmt.Errorf("stage %d: missing working directory", i+1)
		}
		if d.EntryScript == "" {
			return fmt.Errorf("stage %d (%s): missing entry script", i+1, d.DisplayName())
		}
		if d.EnvironmentName == "" {
			return fmt.Errorf("stage %d (%s): missing environment name", i+1, d.DisplayName())
		}
		name := d.DisplayName()
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("stage %d: duplicate stage name %q (first used by stage %d)", i+1, name, prev)
		}
		seen[name] = i + 1
	}
	return nil
}

// Rooted returns a copy of t with relative working directories joined to root.
func (t Table) Rooted(root string) Table {
	out := make(Table, len(t))
	for i, d := range t {
		if !filepath.IsAbs(d.WorkingDirectory) {
			d.WorkingDirectory = filepath.Join(root, d.WorkingDirectory)
		}
		d.ExtraArgs = append([]string(nil), d.ExtraArgs...)
		out[i] = d
	}
	return out
}
