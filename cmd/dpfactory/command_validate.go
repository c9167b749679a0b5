package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourceplane/dpfactory/internal/deploy"
	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/model"
	"github.com/sourceplane/dpfactory/internal/render"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate Data Product definitions without contacting the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateFiles(cmd.Context())
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&folder, "folder", "f", defaultFolder, "Folder containing Data Product definitions")
	validateCmd.Flags().StringVar(&emitDir, "emit-dir", "", "Write the rendered product payloads to this directory")
	validateCmd.Flags().StringVar(&outputFormat, "format", "json", "Payload format for --emit-dir (json or yaml)")
	validateCmd.Flags().IntVar(&workers, "workers", 0, "Files validated concurrently (default GOMAXPROCS)")
}

func validateFiles(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if outputFormat != "json" && outputFormat != "yaml" {
		return fmt.Errorf("unsupported format %q (use json or yaml)", outputFormat)
	}

	files, err := loader.DiscoverDefinitions(folder)
	if err != nil {
		return err
	}
	p := render.NewPrinter(os.Stdout)
	if len(files) == 0 {
		p.Line("No .yaml files found in %s", folder)
		return nil
	}

	l, err := newLoader(appConfig)
	if err != nil {
		return err
	}
	checks, err := deploy.ValidateFiles(ctx, l, files, payloadOptions(appConfig), workers)
	if err != nil {
		return err
	}

	failed := 0
	written := make(map[string]string) // payload path -> definition file
	for _, c := range checks {
		name := filepath.Base(c.File)
		if c.Err != nil {
			failed++
			if model.IsValidationError(c.Err) {
				p.Failure("%s: Validation Failed: %v", name, c.Err)
			} else {
				p.Failure("%s: %v", name, c.Err)
			}
			continue
		}
		if emitDir != "" {
			path := filepath.Join(emitDir, render.PayloadFileName(c.Product, outputFormat))
			if other, ok := written[path]; ok {
				failed++
				p.Failure("%s: %s: payload %s already written for %s", name, c.Product, path, filepath.Base(other))
				continue
			}
			written[path] = c.File
			if err := render.WritePayload(c.Payload, path); err != nil {
				return err
			}
			p.Success("%s: %s", name, c.Product)
			p.Indent().Line("payload written to %s", path)
			continue
		}
		p.Success("%s: %s", name, c.Product)
	}

	p.Line("")
	p.Line("%d/%d Data Product definitions valid", len(checks)-failed, len(checks))
	if failed > 0 {
		return fmt.Errorf("%d definition(s) failed validation", failed)
	}
	return nil
}
