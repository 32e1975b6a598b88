package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nutrition-resolver/internal/core/nutrition/catalog"
	"nutrition-resolver/internal/pkg/common"
)

func newCatalogCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect or seed the product catalog database",
	}
	cmd.AddCommand(newCatalogStatsCommand(opts), newCatalogSeedCommand(opts))
	return cmd
}

func openStore(cmd *cobra.Command, opts *options) (*catalog.SQLStore, error) {
	cfg, err := opts.loadConfig(false)
	if err != nil {
		return nil, err
	}
	return catalog.Open(cmd.Context(), catalog.Options{
		Driver:     cfg.Catalog.Driver,
		DSN:        cfg.Catalog.DSN,
		ReadyTable: cfg.Catalog.ReadyTable,
		BrandTable: cfg.Catalog.BrandTable,
	})
}

func newCatalogStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the catalog and print its entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			c := catalog.New(store)
			if err := c.Reload(cmd.Context()); err != nil {
				return err
			}
			stats := c.Stats()

			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ready: %d\nbrand: %d\n", stats.Ready, stats.Brand)
			return err
		},
	}
}

func newCatalogSeedCommand(opts *options) *cobra.Command {
	var (
		file string
		kind string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the catalog tables and insert entries from a JSON file",
		Long: "Reads [{\"name\":...,\"kcal\":...,\"protein\":...,\"fat\":...,\"carb\":...,\"fiber\":...}]\n" +
			"(per 100 g) and inserts them into the ready or brand table.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := common.ParseCatalogKind(kind)
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var entries []common.CatalogEntry
			if err := common.ParseJSONBytes(data, &entries); err != nil {
				return fmt.Errorf("invalid entries file: %w", err)
			}
			for _, e := range entries {
				if e.Name == "" || !e.Valid() {
					return fmt.Errorf("invalid catalog entry %q", e.Name)
				}
			}

			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := store.Insert(cmd.Context(), k, entries); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "inserted %d %s entries\n", len(entries), k)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "entries JSON file, - for stdin")
	cmd.Flags().StringVar(&kind, "kind", string(common.CatalogReady), "catalog kind (ready | brand)")
	return cmd
}
