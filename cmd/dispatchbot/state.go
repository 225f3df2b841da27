package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nnthruslpn/telegram-bot/dispatch"
	"github.com/nnthruslpn/telegram-bot/internal/logutil"
	"github.com/nnthruslpn/telegram-bot/internal/statepaths"
)

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted task state",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}

			path := statepaths.TaskStatePath()
			store := dispatch.NewStore(path, logger)
			if err := store.Load(); err != nil {
				return fmt.Errorf("load task state: %w", err)
			}

			tasks := store.Tasks()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "state file: %s\n", path)
			_, _ = fmt.Fprintf(out, "next task id: %d\n", store.NextID())
			if len(tasks) == 0 {
				_, _ = fmt.Fprintln(out, "no tasks")
				return nil
			}

			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tCLIENT\tTAKEN BY\tRESPONSES\tCREATED")
			for _, task := range tasks {
				_, _ = fmt.Fprintf(w, "%d\t%s %s\t%s\t%s\t%d\t%s\n",
					task.ID,
					task.Status.Marker(), task.Status,
					task.ClientName(),
					task.TakenBy,
					len(task.Responses),
					task.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			return w.Flush()
		},
	}
}
