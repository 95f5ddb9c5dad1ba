package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/azzy787/task-board-mvp/app"
	"github.com/azzy787/task-board-mvp/board"
	"github.com/azzy787/task-board-mvp/domain"
)

func refreshCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Repair inconsistent task records once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := app.OpenBoard(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			rep, err := a.Service.Refresh(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d, unchanged %d\n", rep.Updated, rep.Unchanged)
			return err
		},
	}
}

func showCmd(load loader) *cobra.Command {
	var f board.Filter
	var status string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			f.Status = domain.Status(status)
			if f.Status != "" && !f.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			a, err := app.OpenBoard(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			v, err := a.Service.View(cmd.Context(), f)
			if err != nil {
				return err
			}
			printBoard(cmd.OutOrStdout(), v.Snapshot())
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Search, "search", "s", "", "title substring")
	cmd.Flags().StringVar(&status, "status", "", "only this column")
	cmd.Flags().StringVarP(&f.Assignee, "assignee", "a", "", "assignee substring")
	return cmd
}

var columnTitles = map[domain.Status]string{
	domain.StatusTodo:       "To Do",
	domain.StatusInProgress: "In Progress",
	domain.StatusDone:       "Done",
}

func printBoard(w io.Writer, snap board.Snapshot) {
	fmt.Fprintln(w, snap.Title)
	fmt.Fprintln(w, strings.Repeat("=", len(snap.Title)))
	for _, col := range snap.Columns {
		if col.Hidden {
			continue
		}
		fmt.Fprintf(w, "\n%s (%d)\n", columnTitles[col.Status], col.Count)
		for _, c := range col.Cards {
			if c.Hidden {
				continue
			}
			line := fmt.Sprintf("  [%s] %s", c.Priority, c.Title)
			if c.Assignee != "" {
				line += " @" + c.Assignee
			}
			if c.DueDate != nil {
				line += " due " + c.DueDate.Format("2006-01-02")
			}
			fmt.Fprintln(w, line)
		}
	}
}
