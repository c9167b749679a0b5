// Package domain maps a human domain name to the identifier the control
// plane assigns it, creating the domain on first use.
package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/starburst"
)

// DefaultMaxAttempts bounds lookup/create rounds when creation races with
// another writer.
const DefaultMaxAttempts = 2

// ErrUnresolved is returned when no identifier could be obtained within the
// attempt budget.
var ErrUnresolved = errors.New("domain could not be resolved")

// DomainAPI is the part of the control plane client the resolver needs.
type DomainAPI interface {
	GetDomains(ctx context.Context) ([]model.Domain, error)
	CreateDomain(ctx context.Context, name, description string) (model.Domain, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOutput sets where progress lines are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Resolver) {
		if w != nil {
			r.out = w
		}
	}
}

// Resolver finds or creates domains. It keeps no cache, so every call
// observes the current remote state.
type Resolver struct {
	api         DomainAPI
	maxAttempts int
	logger      *slog.Logger
	out         io.Writer
}

// NewResolver creates a resolver backed by api.
func NewResolver(api DomainAPI, opts ...Option) *Resolver {
	r := &Resolver{
		api:         api,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
		out:         io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the identifier of the domain whose name equals name
// exactly, creating it when absent.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("domain name cannot be empty")
	}

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		domains, err := r.api.GetDomains(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list domains: %w", err)
		}
		if id, ok := find(domains, name); ok {
			fmt.Fprintf(r.out, "  ✓ Domain '%s' found\n", name)
			return id, nil
		}

		fmt.Fprintf(r.out, "  □ Creating domain '%s'...\n", name)
		created, err := r.api.CreateDomain(ctx, name, "")
		switch {
		case err == nil:
			if created.ID == "" {
				return "", fmt.Errorf("control plane returned domain %q without an id", name)
			}
			fmt.Fprintf(r.out, "  ✓ Domain '%s' created\n", name)
			return created.ID, nil
		case starburst.IsConflict(err):
			// someone else created it between our lookup and create
			r.logger.Debug("domain create conflicted, retrying lookup", "domain", name, "attempt", attempt)
			continue
		default:
			return "", fmt.Errorf("failed to create domain %q: %w", name, err)
		}
	}

	return "", fmt.Errorf("%w: %q after %d attempts", ErrUnresolved, name, r.maxAttempts)
}

func find(domains []model.Domain, name string) (string, bool) {
	for _, d := range domains {
		if d.Name == name {
			return d.ID, true
		}
	}
	return "", false
}
