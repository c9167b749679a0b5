package deploy

import (
	"context"
	"path/filepath"
	"runtime"

	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/normalize"
	"github.com/sourceplane/dpfactory/internal/payload"
	"golang.org/x/sync/errgroup"
)

// Check is the offline validation result of one definition file.
type Check struct {
	File    string
	Product string
	Payload *model.ProductPayload
	Err     error
}

// PlaceholderDomainID stands in for the domain identifier when payloads are
// built without contacting the control plane.
func PlaceholderDomainID(domain string) string {
	return "<domain:" + domain + ">"
}

// ValidateFiles loads, normalizes and builds the payload of every file
// without any remote call. Files are checked concurrently; results keep the
// order of files. The returned error is only set when ctx ends early.
func ValidateFiles(ctx context.Context, l *loader.Loader, files []string, opts payload.Options, workers int) ([]Check, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	checks := make([]Check, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			checks[i] = validateFile(l, file, opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return checks, err
	}
	return checks, nil
}

func validateFile(l *loader.Loader, file string, opts payload.Options) Check {
	c := Check{File: file}
	name := filepath.Base(file)

	def, err := l.Load(file)
	if err != nil {
		c.Err = err
		return c
	}
	c.Product = def.Name
	if err := normalize.NormalizeDefinition(def, name); err != nil {
		c.Err = err
		return c
	}
	c.Payload, c.Err = payload.Build(def, PlaceholderDomainID(def.Domain), opts)
	return c
}
