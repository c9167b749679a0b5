package main

import (
	"fmt"

	"github.com/sourceplane/dpfactory/internal/catalog"
	"github.com/sourceplane/dpfactory/internal/loader"
	"github.com/sourceplane/dpfactory/internal/render"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [product]",
	Short: "Show the local Data Product catalog grouped by domain",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := loader.NewLoader()
		if err != nil {
			return err
		}
		cat, err := catalog.Scan(folder, l)
		if err != nil {
			return err
		}

		viewer := render.NewCatalogViewer(cat)
		if len(args) == 1 {
			if _, _, ok := cat.Find(args[0]); !ok {
				return fmt.Errorf("no Data Product named %q in %s", args[0], folder)
			}
			fmt.Print(viewer.ViewProduct(args[0]))
			return nil
		}

		fmt.Println(viewer.ViewTree(longFormat))
		for _, s := range cat.Skipped {
			fmt.Printf("skipped %s: %s\n", s.File, s.Reason)
		}
		return nil
	},
}

func registerCatalogCommand(root *cobra.Command) {
	root.AddCommand(catalogCmd)

	catalogCmd.Flags().StringVarP(&folder, "folder", "f", defaultFolder, "Folder containing Data Product definitions")
	catalogCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show views of each product")
}
