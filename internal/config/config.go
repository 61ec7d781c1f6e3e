// Package config loads the pipeline definition: the ordered stage table plus
// the filesystem roots and stage tool settings. CUE and YAML files are
// accepted; without a file the built-in table is used.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flarebyte/geotrail/internal/environment"
	"github.com/flarebyte/geotrail/internal/record"
	"github.com/flarebyte/geotrail/internal/stage"
)

// Pipeline is a loaded pipeline definition.
type Pipeline struct {
	ConfigVersion string      `json:"configVersion" yaml:"configVersion"`
	Root          string      `json:"root,omitempty" yaml:"root,omitempty"`
	EnvRoot       string      `json:"envRoot,omitempty" yaml:"envRoot,omitempty"`
	Interpreter   string      `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	HarvestDir    string      `json:"harvestDir,omitempty" yaml:"harvestDir,omitempty"`
	Stages        stage.Table `json:"stages" yaml:"stages"`
	Harvest       Harvest     `json:"harvest,omitempty" yaml:"harvest,omitempty"`
	Backfill      Backfill    `json:"backfill,omitempty" yaml:"backfill,omitempty"`
	Render        Render      `json:"render,omitempty" yaml:"render,omitempty"`
}

// Harvest holds settings of the harvest tool.
type Harvest struct {
	Media []string `json:"media,omitempty" yaml:"media,omitempty"`
	Limit int      `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Backfill holds settings of the backfill tool.
type Backfill struct {
	Predictor []string `json:"predictor,omitempty" yaml:"predictor,omitempty"`
	TimeoutMs int      `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
}

// Render holds settings of the map renderer.
type Render struct {
	Where     string `json:"where,omitempty" yaml:"where,omitempty"`
	MaxImages int    `json:"maxImages,omitempty" yaml:"maxImages,omitempty"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
}

// DefaultStages is the three-stage table used when no config file is given.
func DefaultStages() stage.Table {
	return stage.Table{
		{Name: "harvest", WorkingDirectory: "instascraper", EntryScript: "instascraper.py", EnvironmentName: "venv"},
		{Name: "backfill", WorkingDirectory: "geoclip-env", EntryScript: "geoclip_pipeline.py", EnvironmentName: "geoclip-env"},
		{Name: "render", WorkingDirectory: "geovisualise", EntryScript: "geovisualise.py", EnvironmentName: "venv"},
	}
}

// Default returns the built-in pipeline rooted at root.
func Default(root string) Pipeline {
	p := Pipeline{ConfigVersion: CurrentConfigVersion, Root: root, Stages: DefaultStages()}
	return p.withDefaults("")
}

// Load reads a pipeline file. The format follows the extension: .cue, .yaml
// or .yml. A relative root is taken from the file's directory.
func Load(path string) (Pipeline, error) {
	var (
		p   Pipeline
		err error
	)
	switch filepath.Ext(path) {
	case ".cue":
		p, err = loadCUE(path)
	case ".yaml", ".yml":
		p, err = loadYAML(path)
	default:
		return Pipeline{}, errors.New("unsupported config format: expected .cue, .yaml or .yml")
	}
	if err != nil {
		return Pipeline{}, err
	}
	if err := checkConfigVersion(p.ConfigVersion); err != nil {
		return Pipeline{}, err
	}
	if err := p.Stages.Validate(); err != nil {
		return Pipeline{}, fmt.Errorf("invalid config: %w", err)
	}
	return p.withDefaults(filepath.Dir(path)), nil
}

func (p Pipeline) withDefaults(base string) Pipeline {
	if p.Root == "" {
		p.Root = base
	} else if !filepath.IsAbs(p.Root) && base != "" {
		p.Root = filepath.Join(base, p.Root)
	}
	if p.Root == "" {
		p.Root = "."
	}
	if p.Interpreter == "" {
		p.Interpreter = environment.DefaultInterpreter
	}
	if p.HarvestDir == "" {
		p.HarvestDir = record.DefaultHarvestDir
	}
	return p
}

// WithRoot returns a copy of p rooted at root; an empty root keeps p as is.
func (p Pipeline) WithRoot(root string) Pipeline {
	if root != "" {
		p.Root = root
	}
	return p
}

// EnvBase is the directory holding the isolated environments.
func (p Pipeline) EnvBase() string {
	switch {
	case p.EnvRoot == "":
		return p.Root
	case filepath.IsAbs(p.EnvRoot):
		return p.EnvRoot
	default:
		return filepath.Join(p.Root, p.EnvRoot)
	}
}

// Table returns the stage table with working directories under Root.
func (p Pipeline) Table() stage.Table {
	return p.Stages.Rooted(p.Root)
}

// Resolver returns the environment resolver for this pipeline.
func (p Pipeline) Resolver() environment.Resolver {
	return environment.Resolver{BaseDir: p.EnvBase(), Interpreter: p.Interpreter}
}

// HarvestPath returns the harvest stage directory.
func (p Pipeline) HarvestPath() string {
	return filepath.Join(p.Root, p.HarvestDir)
}

// Open loads the pipeline at path, or the built-in pipeline rooted at the
// working directory when path is empty, then applies a root override.
func Open(path, root string) (Pipeline, error) {
	var (
		p   Pipeline
		err error
	)
	if path == "" {
		cwd, werr := os.Getwd()
		if werr != nil {
			return Pipeline{}, fmt.Errorf("working directory: %w", werr)
		}
		p = Default(cwd)
	} else if p, err = Load(path); err != nil {
		return Pipeline{}, err
	}
	return p.WithRoot(root), nil
}
