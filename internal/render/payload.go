package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sourceplane/dpfactory/internal/model"
	"gopkg.in/yaml.v3"
)

// RenderJSON renders a product payload as indented JSON
func RenderJSON(p *model.ProductPayload) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// RenderYAML renders a product payload as YAML using the wire field names
func RenderYAML(p *model.ProductPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PayloadFileName returns the file name used for a product's payload. The
// name never contains a path separator or starts with a dot.
func PayloadFileName(product, format string) string {
	name := strings.Trim(unsafeFileChars.ReplaceAllString(product, "_"), ".")
	if name == "" {
		name = "product"
	}
	if format == "yaml" {
		return name + ".yaml"
	}
	return name + ".json"
}

// WritePayload writes p to path (JSON or YAML based on extension)
func WritePayload(p *model.ProductPayload, path string) error {
	var data []byte
	var err error

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = RenderYAML(p)
	default:
		data, err = RenderJSON(p)
	}
	if err != nil {
		return fmt.Errorf("failed to render payload: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write payload to %s: %w", path, err)
	}
	return nil
}
