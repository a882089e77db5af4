package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TaxiETL/internal/core"
)

var runOutput string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ETL once over the input file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.Run(cmd.Context(), core.RunRequest{
			InputPath:      a.cfg.Input.Path,
			DuplicatesPath: a.cfg.Input.DuplicatesPath,
		})
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), runOutput, result)
	},
}

func init() {
	runCmd.Flags().String("input", "", "CSV file to extract (env INPUT_PATH)")
	runCmd.Flags().String("duplicates", "", "duplicates CSV to overwrite (env DUPLICATES_PATH)")
	runCmd.Flags().String("parquet", "", "also write kept trips to this Parquet file (env KEPT_PARQUET_PATH)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "result format: text, json or yaml")

	bindFlags(runCmd, map[string]string{
		"input":      "INPUT_PATH",
		"duplicates": "DUPLICATES_PATH",
		"parquet":    "KEPT_PARQUET_PATH",
	})
}

// writeResult renders a run summary in the requested format.
func writeResult(w io.Writer, format string, r *core.RunResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		out, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "run\t%s\n", r.RunID)
		fmt.Fprintf(tw, "input\t%s\n", r.Input)
		fmt.Fprintf(tw, "rows read\t%d\n", r.RowsRead)
		fmt.Fprintf(tw, "kept\t%d\n", r.Kept)
		fmt.Fprintf(tw, "duplicates\t%d\t-> %s\n", r.Duplicates, r.DuplicatesPath)
		fmt.Fprintf(tw, "rejected\t%d\n", r.Rejected)
		rules := make([]string, 0, len(r.RejectedByRule))
		for rule := range r.RejectedByRule {
			rules = append(rules, rule)
		}
		sort.Strings(rules)
		for _, rule := range rules {
			fmt.Fprintf(tw, "  %s\t%d\n", rule, r.RejectedByRule[rule])
		}
		fmt.Fprintf(tw, "loaded\t%d\n", r.Loaded)
		fmt.Fprintf(tw, "table rows\t%d\n", r.TableCount)
		fmt.Fprintf(tw, "duration\t%s\n", r.Duration)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
