package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/getcharzp/go-segtrack/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded tracking sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.DatabaseURL == "" {
			return errors.New("未配置数据库, 请使用 --db 或配置文件中的 database_url")
		}
		db, err := store.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close(context.Background())

		sessions, err := db.ListSessions(cmd.Context(), sessionsLimit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No tracking sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tINPUT\tOUTPUT\tFRAMES\tSTATE\tLOST AT\tSTARTED")
		fmt.Fprintln(w, "--\t-----\t------\t------\t-----\t-------\t-------")
		for _, s := range sessions {
			lost := "-"
			if s.LostAt != nil {
				lost = strconv.Itoa(*s.LostAt)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
				s.ID, s.InputDir, s.OutputDir, s.Processed, s.TotalFrames, s.State, lost,
				s.StartedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum number of sessions to list")
	rootCmd.AddCommand(sessionsCmd)
}
