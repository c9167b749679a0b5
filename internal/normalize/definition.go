package normalize

import (
	"strings"

	"github.com/sourceplane/dpfactory/internal/model"
)

// NormalizeDefinition trims identifiers, initializes empty collections and
// enforces the fields every deployable definition must carry. file names the
// source in validation messages.
func NormalizeDefinition(def *model.Definition, file string) error {
	if def == nil {
		return model.NewValidationError(file, "definition cannot be nil")
	}

	def.Name = strings.TrimSpace(def.Name)
	def.Domain = strings.TrimSpace(def.Domain)
	def.Catalog = strings.TrimSpace(def.Catalog)
	def.Schema = strings.TrimSpace(def.Schema)

	if def.Name == "" {
		return model.NewValidationError(file, "'name' field is mandatory and missing")
	}
	if def.Domain == "" {
		return model.NewValidationError(file, "'domain' field is mandatory and missing")
	}
	if def.Catalog == "" || def.Schema == "" {
		return model.NewValidationError(file, "product %s must declare both 'catalog' and 'schema'", def.Name)
	}

	// Initialize empty collections
	if def.Owners == nil {
		def.Owners = []model.Owner{}
	}
	if def.Views == nil {
		def.Views = []model.View{}
	}
	if def.MaterializedViews == nil {
		def.MaterializedViews = []model.MaterializedView{}
	}

	seen := make(map[string]bool)
	for i := range def.Views {
		v := &def.Views[i]
		if err := normalizeView(v, file, seen); err != nil {
			return err
		}
	}
	for i := range def.MaterializedViews {
		mv := &def.MaterializedViews[i]
		if err := normalizeView(&mv.View, file, seen); err != nil {
			return err
		}
	}

	def.Tags = compactTags(def.Tags)
	return nil
}

func normalizeView(v *model.View, file string, seen map[string]bool) error {
	v.Name = strings.TrimSpace(v.Name)
	v.SecurityMode = strings.ToUpper(strings.TrimSpace(v.SecurityMode))
	if v.Name == "" {
		return model.NewValidationError(file, "view must have a name")
	}
	key := strings.ToLower(v.Name)
	if seen[key] {
		return model.NewValidationError(file, "view name %s is declared more than once", v.Name)
	}
	seen[key] = true
	if strings.TrimSpace(v.Query) == "" {
		return model.NewValidationError(file, "view %s must have a query", v.Name)
	}
	if v.Columns == nil {
		v.Columns = []model.Column{}
	}
	return nil
}

// compactTags drops blank and duplicate tags while keeping declaration order
func compactTags(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
