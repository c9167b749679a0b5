package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourceplane/dpfactory/internal/deploy"
	"github.com/sourceplane/dpfactory/internal/git"
	"github.com/spf13/cobra"
)

const defaultFolder = "definitions"

var domainAttempts int

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy Data Product definitions to the control plane",
	Long: `Deploy every Data Product definition found in a folder.

Each file is validated, its domain is resolved (or created), the product is
created or updated, tags are applied and a publish workflow is triggered and
followed to completion. A failure in one file does not stop the batch.

Ctrl-C aborts the file currently being deployed; a second Ctrl-C stops the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd.Context())
	},
}

func registerDeployCommand(root *cobra.Command) {
	root.AddCommand(deployCmd)

	deployCmd.Flags().StringVarP(&folder, "folder", "f", defaultFolder, "Folder containing Data Product definitions")
	deployCmd.Flags().BoolVar(&changedOnly, "changed", false, "Only deploy definitions changed relative to the base branch")
	deployCmd.Flags().StringVar(&baseBranch, "base", "main", "Base branch used by --changed")
	deployCmd.Flags().IntVar(&domainAttempts, "domain-attempts", 0, "Attempts to resolve a domain when creation races (default 2)")
}

func runDeploy(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := appConfig
	if err := cfg.ValidateDeploy(); err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	var filter func(string) bool
	if changedOnly {
		filter, err = git.NewChangeDetector(baseBranch).ChangedFilter(parent)
		if err != nil {
			return fmt.Errorf("failed to detect changed files: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	interrupts := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go forwardSignals(ctx, sigs, interrupts, cancel)

	l, err := newLoader(cfg)
	if err != nil {
		return err
	}
	deployer, err := deploy.NewDeployer(client, deploy.Options{
		Out:            os.Stdout,
		Loader:         l,
		Logger:         slog.Default(),
		Payload:        payloadOptions(cfg),
		Poll:           pollOptions(cfg),
		DomainAttempts: domainAttempts,
		Interrupts:     interrupts,
	})
	if err != nil {
		return err
	}

	summary, err := deployer.ScanAndDeploy(ctx, folder, filter)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("deployment cancelled after %d/%d Data Products", summary.Succeeded, summary.Attempted)
		}
		return err
	}
	if failed := summary.Attempted - summary.Succeeded; failed > 0 {
		return fmt.Errorf("%d of %d Data Products failed", failed, summary.Attempted)
	}
	return nil
}

// forwardSignals turns the first interrupt into an abort of the current file.
// An interrupt that arrives before the previous one was consumed, or a
// SIGTERM, cancels ctx.
func forwardSignals(ctx context.Context, sigs <-chan os.Signal, interrupts chan<- struct{}, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if sig != os.Interrupt {
				slog.Warn("termination requested, stopping batch", "signal", sig.String())
				cancel()
				return
			}
			select {
			case interrupts <- struct{}{}:
				slog.Warn("interrupt received, aborting current Data Product (press Ctrl-C again to stop)")
			default:
				slog.Warn("second interrupt received, stopping batch")
				cancel()
				return
			}
		}
	}
}
