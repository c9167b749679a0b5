package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/dpfactory/internal/catalog"
	"github.com/sourceplane/dpfactory/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════\n"

// CatalogViewer provides human-readable views of an offline catalog
type CatalogViewer struct {
	cat *catalog.Catalog
}

// NewCatalogViewer creates a new catalog viewer
func NewCatalogViewer(cat *catalog.Catalog) *CatalogViewer {
	return &CatalogViewer{cat: cat}
}

// ViewTree returns domains, their products and, when long is set, each
// product's views as a tree.
func (cv *CatalogViewer) ViewTree(long bool) string {
	if cv.cat == nil || len(cv.cat.Domains) == 0 {
		return "No Data Products found"
	}

	var sb strings.Builder
	for i, d := range cv.cat.Domains {
		isLastDomain := i == len(cv.cat.Domains)-1

		domainPrefix := "├─ "
		domainConnector := "│  "
		if isLastDomain {
			domainPrefix = "└─ "
			domainConnector = "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s (%d data products)\n", domainPrefix, d.Name, len(d.Products)))

		for j, p := range d.Products {
			isLastProduct := j == len(d.Products)-1

			productPrefix := domainConnector + "├─ "
			productConnector := domainConnector + "│  "
			if isLastProduct {
				productPrefix = domainConnector + "└─ "
				productConnector = domainConnector + "   "
			}
			sb.WriteString(fmt.Sprintf("%s%s [%d views] %s\n", productPrefix, p.Name, len(p.Views), p.File))

			if !long {
				continue
			}
			for k, v := range p.Views {
				viewPrefix := productConnector + "├─ "
				if k == len(p.Views)-1 {
					viewPrefix = productConnector + "└─ "
				}
				sb.WriteString(fmt.Sprintf("%s%s (%s, %d columns)\n", viewPrefix, v.Name, v.Kind, len(v.Columns)))
			}
		}
	}

	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("Summary: %d domains, %d data products\n", len(cv.cat.Domains), cv.cat.ProductCount()))
	if n := len(cv.cat.Skipped); n > 0 {
		sb.WriteString(fmt.Sprintf("Skipped %d file(s):\n", n))
		for _, s := range cv.cat.Skipped {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", s.File, s.Reason))
		}
	}

	return sb.String()
}

// ViewProduct shows a single product with its views and columns
func (cv *CatalogViewer) ViewProduct(name string) string {
	p, domain, ok := cv.cat.Find(name)
	if !ok {
		return fmt.Sprintf("No Data Product found: %s", name)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s [%s]\n", p.Name, domain))
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("  File:        %s\n", p.File))
	sb.WriteString(fmt.Sprintf("  Location:    %s.%s\n", p.Catalog, p.Schema))
	sb.WriteString(fmt.Sprintf("  Description: %s\n", p.Description))
	if len(p.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("  Tags:        %s\n", strings.Join(p.Tags, ", ")))
	}
	sb.WriteString("\n")

	for i, v := range p.Views {
		prefix := "├─ "
		connector := "│  "
		if i == len(p.Views)-1 {
			prefix = "└─ "
			connector = "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s (%s)\n", prefix, v.Name, v.Kind))
		if v.Description != "" {
			sb.WriteString(fmt.Sprintf("%s  %s\n", connector, v.Description))
		}
		for _, c := range v.Columns {
			line := fmt.Sprintf("%s    %s", connector, c.Name)
			if c.Type != "" {
				line += " " + c.Type
			}
			if c.Description != "" {
				line += " | " + c.Description
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

// ViewDomains lists remote domains sorted by name
func ViewDomains(domains []model.Domain) string {
	if len(domains) == 0 {
		return "No domains found"
	}

	sorted := append([]model.Domain(nil), domains...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	for i, d := range sorted {
		prefix := "├─ "
		connector := "│  "
		if i == len(sorted)-1 {
			prefix = "└─ "
			connector = "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s (%s)\n", prefix, d.Name, d.ID))
		if d.SchemaLocation != "" {
			sb.WriteString(fmt.Sprintf("%s  Location: %s\n", connector, d.SchemaLocation))
		}
		if d.Description != "" {
			sb.WriteString(fmt.Sprintf("%s  %s\n", connector, d.Description))
		}
	}
	sb.WriteString(rule)
	sb.WriteString(fmt.Sprintf("Summary: %d domains\n", len(sorted)))

	return sb.String()
}
