// Package catalog builds an offline inventory of Data Product definitions
// grouped by business domain.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/model"
)

const noDescription = "No description available."

// Kinds of catalog views
const (
	KindView             = "View"
	KindMaterializedView = "Materialized View"
)

// Catalog is the result of a scan.
type Catalog struct {
	Domains []Domain
	Skipped []Skipped
}

// Domain groups the products declaring the same domain.
type Domain struct {
	Name        string
	Description string
	Products    []Product
}

// Product is one definition file.
type Product struct {
	Name        string
	Description string
	File        string
	Catalog     string
	Schema      string
	Tags        []string
	Views       []View
}

// View is a view or materialized view of a product.
type View struct {
	Name        string
	Kind        string
	Description string
	Columns     []model.Column
}

// Skipped records a definition file that could not be catalogued.
type Skipped struct {
	File   string
	Reason string
}

// ProductCount returns the number of products across all domains.
func (c *Catalog) ProductCount() int {
	n := 0
	for _, d := range c.Domains {
		n += len(d.Products)
	}
	return n
}

// Scan catalogs every definition in dir and in its immediate
// subdirectories. Environment references are not expanded.
func Scan(dir string, l *loader.Loader) (*Catalog, error) {
	files, err := discover(dir)
	if err != nil {
		return nil, err
	}

	raw := l.WithLookup(func(string) (string, bool) { return "", false })
	groups := make(map[string]*Domain)
	cat := &Catalog{}

	for _, file := range files {
		def, err := raw.Load(file)
		if err != nil {
			cat.Skipped = append(cat.Skipped, Skipped{File: file, Reason: err.Error()})
			continue
		}
		name := strings.TrimSpace(def.Name)
		domain := strings.TrimSpace(def.Domain)
		if name == "" || domain == "" {
			cat.Skipped = append(cat.Skipped, Skipped{File: file, Reason: "'name' and 'domain' are required"})
			continue
		}

		g, ok := groups[domain]
		if !ok {
			g = &Domain{Name: domain, Description: fmt.Sprintf("Business Domain: %s", domain)}
			groups[domain] = g
		}
		g.Products = append(g.Products, product(def, file))
	}

	for _, g := range groups {
		sort.Slice(g.Products, func(i, j int) bool { return g.Products[i].Name < g.Products[j].Name })
		cat.Domains = append(cat.Domains, *g)
	}
	sort.Slice(cat.Domains, func(i, j int) bool { return cat.Domains[i].Name < cat.Domains[j].Name })

	return cat, nil
}

// Find returns the product with the given name, if catalogued.
func (c *Catalog) Find(name string) (Product, string, bool) {
	for _, d := range c.Domains {
		for _, p := range d.Products {
			if p.Name == name {
				return p, d.Name, true
			}
		}
	}
	return Product{}, "", false
}

func product(def *model.Definition, file string) Product {
	desc := firstNonEmpty(def.Description, def.Summary, noDescription)

	views := make([]View, 0, len(def.Views)+len(def.MaterializedViews))
	for _, v := range def.Views {
		views = append(views, View{Name: v.Name, Kind: KindView, Description: v.Description, Columns: v.Columns})
	}
	for _, mv := range def.MaterializedViews {
		views = append(views, View{Name: mv.Name, Kind: KindMaterializedView, Description: mv.Description, Columns: mv.Columns})
	}

	return Product{
		Name:        strings.TrimSpace(def.Name),
		Description: strings.TrimSpace(desc),
		File:        file,
		Catalog:     def.Catalog,
		Schema:      def.Schema,
		Tags:        def.Tags,
		Views:       views,
	}
}

// discover lists definition files in dir and one level of subdirectories.
func discover(dir string) ([]string, error) {
	files, err := loader.DiscoverDefinitions(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		nested, err := loader.DiscoverDefinitions(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, nested...)
	}
	return files, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
