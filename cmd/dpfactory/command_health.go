package main

import (
	"errors"
	"os"

	"github.com/sourceplane/dpfactory/internal/render"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity and credentials against the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Validate(); err != nil {
			return err
		}
		client, err := newClient(appConfig)
		if err != nil {
			return err
		}

		p := render.NewPrinter(os.Stdout)
		p.Step("Checking %s", client.BaseURL())
		ok, msg := client.HealthCheck(cmd.Context())
		if !ok {
			p.Failure("%s", msg)
			return errors.New("health check failed")
		}
		p.Success("%s", msg)

		catalogs, err := client.GetCatalogs(cmd.Context())
		if err != nil {
			p.Warn("could not list catalogs: %v", err)
			return nil
		}
		p.Line("Target catalogs: %d", len(catalogs))
		for _, c := range catalogs {
			p.Indent().Line("%s", c.Name)
		}
		return nil
	},
}

func registerHealthCommand(root *cobra.Command) {
	root.AddCommand(healthCmd)
}
