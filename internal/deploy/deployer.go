// Package deploy drives Data Product definitions through domain resolution,
// create-or-update, tagging and publishing.
//
// Each definition file is independent: a failure in one file is recorded in
// its Result and never stops the batch. Files are processed one at a time,
// including the wait for the publish workflow.
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sourceplane/dpfactory/internal/domain"
	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/logging"
	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/normalize"
	"github.com/sourceplane/dpfactory/internal/payload"
	"github.com/sourceplane/dpfactory/internal/render"
)

// API is the part of the control plane client the deployer needs.
type API interface {
	domain.DomainAPI
	StatusAPI
	SearchProducts(ctx context.Context, search string) ([]model.ProductSummary, error)
	CreateProduct(ctx context.Context, p *model.ProductPayload) (model.Product, error)
	UpdateProduct(ctx context.Context, id string, p *model.ProductPayload) (model.Product, error)
	UpdateProductTags(ctx context.Context, productID string, tags []string) error
	TriggerPublish(ctx context.Context, productID string) (string, error)
}

// Outcome classifies how a file's deployment ended.
type Outcome int

const (
	// Pending is the zero value: the file has not finished deploying.
	Pending Outcome = iota
	Deployed
	ValidationFailed
	Failed
	Interrupted
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Deployed:
		return "deployed"
	case ValidationFailed:
		return "validation failed"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of deploying one definition file.
type Result struct {
	File      string
	Product   string
	ProductID string
	Outcome   Outcome
	Err       error
}

// OK reports whether the product was published successfully.
func (r Result) OK() bool {
	return r.Outcome == Deployed
}

// Summary aggregates the results of a batch.
type Summary struct {
	Attempted int
	Succeeded int
	Results   []Result
}

// Count returns the number of results with outcome o.
func (s Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// WorkflowError reports a publish workflow that ended in a status other
// than COMPLETED.
type WorkflowError struct {
	Status string
	Errors []json.RawMessage
}

func (e *WorkflowError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("publish workflow finished with status %s", e.Status)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, raw := range e.Errors {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			msgs = append(msgs, s)
			continue
		}
		msgs = append(msgs, string(raw))
	}
	return fmt.Sprintf("publish workflow finished with status %s: %s", e.Status, strings.Join(msgs, "; "))
}

// Options configures a Deployer.
type Options struct {
	Out            io.Writer
	Logger         *slog.Logger
	Loader         *loader.Loader
	Payload        payload.Options
	Poll           PollOptions
	DomainAttempts int

	// Interrupts aborts the file currently being deployed. The batch
	// continues with the next file.
	Interrupts <-chan struct{}
}

// Deployer deploys definition files sequentially.
type Deployer struct {
	api        API
	loader     *loader.Loader
	resolver   *domain.Resolver
	payload    payload.Options
	poll       PollOptions
	interrupts <-chan struct{}
	out        *render.Printer
	logger     *slog.Logger
}

// NewDeployer creates a deployer. A nil Loader is replaced by one reading the
// process environment.
func NewDeployer(api API, opts Options) (*Deployer, error) {
	if api == nil {
		return nil, fmt.Errorf("deployer requires an API client")
	}
	l := opts.Loader
	if l == nil {
		var err error
		if l, err = loader.NewLoader(); err != nil {
			return nil, fmt.Errorf("failed to create loader: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := render.NewPrinter(opts.Out)

	resolverOpts := []domain.Option{
		domain.WithLogger(logger),
		domain.WithOutput(out.Indent().Writer()),
	}
	if opts.DomainAttempts > 0 {
		resolverOpts = append(resolverOpts, domain.WithMaxAttempts(opts.DomainAttempts))
	}

	return &Deployer{
		api:        api,
		loader:     l,
		resolver:   domain.NewResolver(api, resolverOpts...),
		payload:    opts.Payload,
		poll:       opts.Poll,
		interrupts: opts.Interrupts,
		out:        out,
		logger:     logger,
	}, nil
}

// DeployFile runs the full deployment of a single definition file. It never
// panics on remote or validation errors; they are reported in the Result.
func (d *Deployer) DeployFile(ctx context.Context, path string) Result {
	d.discardInterrupt()

	name := filepath.Base(path)
	res := Result{File: path}
	log := logging.WithFile(d.logger, name)

	def, err := d.loader.Load(path)
	if err != nil {
		return d.finish(ctx, res, err, log)
	}
	res.Product = strings.TrimSpace(def.Name)
	if err := normalize.NormalizeDefinition(def, name); err != nil {
		return d.finish(ctx, res, err, log)
	}

	d.out.Header("\n--- Processing: %s (%s) ---", def.Name, name)
	p := d.out.Indent()

	if err := d.checkInterrupt(ctx); err != nil {
		return d.finish(ctx, res, err, log)
	}
	domainID, err := d.resolver.Resolve(ctx, def.Domain)
	if err != nil {
		return d.finish(ctx, res, fmt.Errorf("failed to resolve domain %q: %w", def.Domain, err), log)
	}
	log.Debug("domain resolved", "domain", def.Domain, "domain_id", domainID)

	existingID, err := d.findProduct(ctx, def.Name)
	if err != nil {
		return d.finish(ctx, res, err, log)
	}

	body, err := payload.Build(def, domainID, d.payload)
	if err != nil {
		return d.finish(ctx, res, err, log)
	}

	if err := d.checkInterrupt(ctx); err != nil {
		return d.finish(ctx, res, err, log)
	}
	var product model.Product
	if existingID != "" {
		p.Step("Updating existing product (ID: %s)...", existingID)
		product, err = d.api.UpdateProduct(ctx, existingID, body)
	} else {
		p.Step("Creating new product...")
		product, err = d.api.CreateProduct(ctx, body)
	}
	if err != nil {
		return d.finish(ctx, res, fmt.Errorf("failed to save product: %w", err), log)
	}
	if product.ID == "" {
		return d.finish(ctx, res, fmt.Errorf("control plane returned product %q without an id", def.Name), log)
	}
	res.ProductID = product.ID

	if len(def.Tags) > 0 {
		p.Step("Updating tags (%s)...", strings.Join(def.Tags, ", "))
		if err := d.api.UpdateProductTags(ctx, product.ID, def.Tags); err != nil {
			return d.finish(ctx, res, fmt.Errorf("failed to update tags: %w", err), log)
		}
	}

	if err := d.checkInterrupt(ctx); err != nil {
		return d.finish(ctx, res, err, log)
	}
	p.Step("Triggering publish workflow...")
	statusURL, err := d.api.TriggerPublish(ctx, product.ID)
	if err != nil {
		return d.finish(ctx, res, fmt.Errorf("failed to trigger publish: %w", err), log)
	}

	st, err := d.waitForPublish(ctx, p, statusURL, log)
	if err != nil {
		return d.finish(ctx, res, err, log)
	}
	if !st.Succeeded() {
		for _, e := range st.Errors {
			log.Error("publish workflow error", "product", def.Name, "error", string(e))
		}
		return d.finish(ctx, res, &WorkflowError{Status: st.Status, Errors: st.Errors}, log)
	}

	p.Success("Published %s (ID: %s)", def.Name, product.ID)
	log.Info("data product deployed", "product", def.Name, "product_id", product.ID)
	res.Outcome = Deployed
	return res
}

// ScanAndDeploy deploys every definition file in dir accepted by filter (nil
// accepts all). A missing directory is an error; an empty one is not. Once
// ctx is cancelled no further files are started.
func (d *Deployer) ScanAndDeploy(ctx context.Context, dir string, filter func(path string) bool) (Summary, error) {
	files, err := loader.DiscoverDefinitions(dir)
	if err != nil {
		return Summary{}, err
	}
	if filter != nil {
		kept := files[:0]
		for _, f := range files {
			if filter(f) {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	if len(files) == 0 {
		d.out.Line("No .yaml files found in %s", dir)
		return Summary{}, nil
	}
	d.out.Line("Found %d Data Product definition(s) in '%s'", len(files), dir)

	var s Summary
	for i, f := range files {
		if ctx.Err() != nil {
			d.out.Failure("Cancelled: %d file(s) not processed", len(files)-i)
			break
		}
		res := d.DeployFile(ctx, f)
		s.Attempted++
		if res.OK() {
			s.Succeeded++
		}
		s.Results = append(s.Results, res)
	}

	d.printSummary(s)
	return s, ctx.Err()
}

func (d *Deployer) findProduct(ctx context.Context, name string) (string, error) {
	hits, err := d.api.SearchProducts(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to search products: %w", err)
	}
	for _, h := range hits {
		if h.Name == name {
			return h.ID, nil
		}
	}
	return "", nil
}

func (d *Deployer) waitForPublish(ctx context.Context, p *render.Printer, statusURL string, log *slog.Logger) (model.WorkflowStatus, error) {
	p.Step("Polling status...")
	poller := NewPoller(d.api, d.poll, d.interrupts)

	dots := 0
	poller.OnPoll = func(st model.WorkflowStatus) {
		if dots == 0 {
			p.Progress("    ")
		}
		p.Progress(".")
		dots++
		log.Debug("publish workflow running", "status", st.Status)
	}
	st, err := poller.Wait(ctx, statusURL)
	if dots > 0 {
		p.Progress("\n")
	}
	return st, err
}

func (d *Deployer) checkInterrupt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	select {
	case <-d.interrupts:
		return ErrInterrupted
	default:
		return nil
	}
}

// discardInterrupt drops an interrupt that arrived after the previous file
// had already finished, so it cannot abort a file nobody interrupted.
func (d *Deployer) discardInterrupt() {
	select {
	case <-d.interrupts:
		d.logger.Debug("discarding interrupt received after the previous file finished")
	default:
	}
}

// finish classifies err and reports it.
func (d *Deployer) finish(ctx context.Context, res Result, err error, log *slog.Logger) Result {
	res.Err = err
	res.Outcome = classify(ctx, err)
	name := filepath.Base(res.File)

	switch res.Outcome {
	case ValidationFailed:
		d.out.Failure("SKIPPING %s: Validation Failed: %v", name, err)
		log.Error("validation failed", "error", err)
	case Interrupted:
		d.out.Indent().Failure("Interrupted: %s left as is, rerun to converge", name)
		log.Warn("deployment interrupted", "error", err)
	case TimedOut:
		d.out.Indent().Failure("Timed out waiting for publish: %v", err)
		log.Error("publish timed out", "error", err)
	default:
		d.out.Indent().Failure("Deployment Error: %v", err)
		log.Error("deployment failed", "error", err)
	}
	return res
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case model.IsValidationError(err):
		return ValidationFailed
	case errors.Is(err, ErrPublishTimeout):
		return TimedOut
	case errors.Is(err, ErrInterrupted), ctx.Err() != nil:
		return Interrupted
	default:
		return Failed
	}
}

func (d *Deployer) printSummary(s Summary) {
	d.out.Line("")
	var validation, failed []Result
	for _, r := range s.Results {
		switch r.Outcome {
		case Deployed:
		case ValidationFailed:
			validation = append(validation, r)
		default:
			failed = append(failed, r)
		}
	}
	if len(validation) > 0 {
		d.out.Header("Validation failures:")
		for _, r := range validation {
			d.out.Indent().Failure("%s: %v", filepath.Base(r.File), r.Err)
		}
	}
	if len(failed) > 0 {
		d.out.Header("Deployment failures:")
		for _, r := range failed {
			d.out.Indent().Failure("%s (%s): %v", filepath.Base(r.File), r.Outcome, r.Err)
		}
	}
	d.out.Line("Successfully deployed %d/%d Data Products", s.Succeeded, s.Attempted)
}
