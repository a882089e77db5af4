package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TaxiETL/internal/watch"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the ETL for every CSV file dropped into a directory",
	Long: `Process the CSV files in the watch directory, then keep watching it for new
ones. Each processed file is moved to the Uploaded subdirectory next to its
"<name> - duplicates.csv" report. Files whose run fails stay in place.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := watch.New(a.service, a.cfg.Watch)
		if err != nil {
			return err
		}
		if watchOnce {
			return w.ProcessExisting(cmd.Context())
		}
		return w.Run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().String("dir", "", "directory to watch (env WATCH_DIR)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "process the files already present and exit")

	bindFlags(watchCmd, map[string]string{"dir": "WATCH_DIR"})
}
