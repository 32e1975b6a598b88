package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/core/nutrition/resolver"
	"nutrition-resolver/internal/core/nutrition/summary"
	"nutrition-resolver/internal/pkg/common"
)

func newResolveCommand(opts *options) *cobra.Command {
	var (
		file   string
		header string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a JSON list of food items and print the summary",
		Long: "Reads [{\"name\":...,\"grams\":...,\"branded\":...}] from --file (or stdin when\n" +
			"--file is -) and prints the formatted meal summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig(!opts.offline)
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Resolver.Process(cmd.Context(), items, resolver.Options{Header: header})
			if err != nil {
				return err
			}

			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "items JSON file, - for stdin")
	cmd.Flags().StringVar(&header, "header", "", "first line of the summary")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "do not call the language model for unmatched items")
	return cmd
}

func newRoundCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "round",
		Short: "Round every totals line read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), summary.RoundTotals(string(data)))
			return err
		},
	}
}

func newDayCommand(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "day",
		Short: "Sum the totals lines of a day's stored responses",
		Long:  "Reads a JSON array of response texts from --file (or stdin) and prints the day summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			var responses []string
			if err := common.ParseJSONBytes(data, &responses); err != nil {
				return fmt.Errorf("invalid responses file: %w", err)
			}

			day := summary.SummarizeDay(responses)
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), day)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), day.Text())
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "responses JSON file, - for stdin")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}

func readItems(stdin io.Reader, file string) ([]common.FoodItem, error) {
	data, err := readInput(stdin, file)
	if err != nil {
		return nil, err
	}
	var items []common.FoodItem
	if err := common.ParseJSONBytes(data, &items); err != nil {
		return nil, fmt.Errorf("invalid items file: %w", err)
	}
	return items, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
