package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/schema"
	"gopkg.in/yaml.v3"
)

// ErrFolderNotFound is returned when the definitions folder does not exist
var ErrFolderNotFound = errors.New("definitions folder not found")

// envRef matches $NAME and ${NAME} references
var envRef = regexp.MustCompile(`\$(\{[^}]*\}|[A-Za-z0-9_]+)`)

// Loader reads Data Product definition files
type Loader struct {
	validator *schema.Validator
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that substitutes variables from the process environment
func NewLoader() (*Loader, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{
		validator: validator,
		lookupEnv: os.LookupEnv,
	}, nil
}

// WithLookup returns a copy of the loader resolving variables through lookup
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	cp := *l
	cp.lookupEnv = lookup
	return &cp
}

// Load reads, expands and parses a single definition file. Schema violations
// are reported as *model.ValidationError; I/O and YAML syntax errors are not.
func (l *Loader) Load(path string) (*model.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file: %w", err)
	}
	return l.Parse(filepath.Base(path), data)
}

// Parse expands environment references in data and decodes it. name is used
// in error messages only.
func (l *Loader) Parse(name string, data []byte) (*model.Definition, error) {
	expanded := []byte(ExpandEnv(string(data), l.lookupEnv))

	var doc interface{}
	if err := yaml.Unmarshal(expanded, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML %s: %w", name, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("definition file %s is empty", name)
	}

	if err := l.validator.ValidateDefinition(doc); err != nil {
		return nil, &model.ValidationError{Subject: name, Reason: err.Error()}
	}

	var def model.Definition
	if err := yaml.Unmarshal(expanded, &def); err != nil {
		return nil, &model.ValidationError{Subject: name, Reason: err.Error()}
	}
	return &def, nil
}

// ExpandEnv replaces $NAME and ${NAME} with values from lookup. References
// that do not resolve are left untouched.
func ExpandEnv(s string, lookup func(string) (string, bool)) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimPrefix(ref, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
		if name == "" {
			return ref
		}
		if v, ok := lookup(name); ok {
			return v
		}
		return ref
	})
}

// DiscoverDefinitions lists the .yaml and .yml files directly inside dir,
// skipping dotfiles. The result is sorted by file name.
func DiscoverDefinitions(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
		}
		return nil, fmt.Errorf("failed to access definitions folder %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrFolderNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// IsDefinitionFile reports whether a file name looks like a definition file
func IsDefinitionFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
