package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/marbledata/marble/pkg/engine"
)

// Definition is one declared resource in a manifest file.
type Definition struct {
	// Type names the resource type, e.g. "table".
	Type string `yaml:"type" validate:"required"`

	// ID is the resource's identifier on the platform.
	ID string `yaml:"id" validate:"required"`

	// Spec is the desired state document.
	Spec map[string]any `yaml:"spec"`
}

// Manifest is the document shape of one manifest file.
type Manifest struct {
	Resources []Definition `yaml:"resources" validate:"dive"`
}

// Loader reads manifest files into resource definitions.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a manifest loader.
func NewLoader() *Loader {
	return &Loader{validator: validator.New()}
}

// Load reads one manifest file or every .yaml/.yml file in a directory,
// in lexical order, and returns the merged resource set. A resource key
// declared twice is an error, with both files named.
func (l *Loader) Load(path string) ([]engine.Resource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifests: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = manifestFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no manifest files in %s", path)
		}
	}

	var resources []engine.Resource
	declaredIn := make(map[engine.ResourceKey]string)
	for _, file := range files {
		defs, err := l.loadFile(file)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			r := engine.Resource{Type: def.Type, ID: def.ID, Spec: def.Spec}
			if prev, ok := declaredIn[r.Key()]; ok {
				return nil, fmt.Errorf("resource %s declared in both %s and %s",
					r.Key(), prev, file)
			}
			declaredIn[r.Key()] = file
			resources = append(resources, r)
		}
	}
	return resources, nil
}

func (l *Loader) loadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	// A file may hold multiple YAML documents.
	var defs []Definition
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	for {
		var m Manifest
		err := decoder.Decode(&m)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if err := l.validator.Struct(m); err != nil {
			return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
		}
		defs = append(defs, m.Resources...)
	}
	return defs, nil
}

func manifestFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading manifests: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
