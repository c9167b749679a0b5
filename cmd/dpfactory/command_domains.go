package main

import (
	"fmt"

	"github.com/sourceplane/dpfactory/internal/render"
	"github.com/spf13/cobra"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List data product domains registered on the control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Validate(); err != nil {
			return err
		}
		client, err := newClient(appConfig)
		if err != nil {
			return err
		}
		domains, err := client.GetDomains(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list domains: %w", err)
		}
		fmt.Println(render.ViewDomains(domains))
		return nil
	},
}

func registerDomainsCommand(root *cobra.Command) {
	root.AddCommand(domainsCmd)
}
