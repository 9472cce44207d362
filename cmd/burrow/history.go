package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the lifecycle journal",
	Long: `Print the lifecycle events recorded by "burrow start --data-dir".

The journal is locked while a master is running, so history is read from a
stopped cluster or a copy of its data directory.

Examples:
  # Last 50 events
  burrow history --data-dir ./burrow-data

  # Last known state of every process
  burrow history --data-dir ./burrow-data --processes`,
	RunE: runHistory,
}

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	historyCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func init() {
	historyCmd.Flags().String("data-dir", "./burrow-data", "Directory of the lifecycle journal")
	historyCmd.Flags().IntP("limit", "n", 50, "Number of events to show (0 for all)")
	historyCmd.Flags().Bool("processes", false, "Show the last known state of each process instead of events")
	historyCmd.Flags().Bool("json", false, "Output JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	limit, _ := cmd.Flags().GetInt("limit")
	processes, _ := cmd.Flags().GetBool("processes")
	asJSON, _ := cmd.Flags().GetBool("json")

	journal, err := storage.NewBoltJournal(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()

	var rows [][]string
	var headers []string
	var out any

	if processes {
		states, err := journal.Processes()
		if err != nil {
			return err
		}
		out = states
		headers = []string{"ROLE", "NAME", "PID", "STATUS", "LAST EVENT", "UPDATED", "RUN"}
		for _, s := range states {
			rows = append(rows, []string{
				s.Role,
				s.Name,
				strconv.Itoa(s.Pid),
				statusLabel(s.Status),
				s.LastEvent,
				s.UpdatedAt.Format("2006-01-02 15:04:05"),
				s.RunID,
			})
		}
	} else {
		evs, err := journal.Events(limit)
		if err != nil {
			return err
		}
		out = evs
		headers = []string{"TIME", "EVENT", "ROLE", "NAME", "PID", "STATUS", "MESSAGE"}
		for _, ev := range evs {
			pid, status := "", ""
			if ev.Process != "" {
				pid = strconv.Itoa(ev.Pid)
				status = statusLabel(ev.Status)
			}
			rows = append(rows, []string{
				ev.Timestamp.Format("2006-01-02 15:04:05.000"),
				string(ev.Type),
				ev.Role,
				ev.Process,
				pid,
				status,
				ev.Message,
			})
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(rows) == 0 {
		fmt.Println("No history recorded")
		return nil
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle
			}
			return historyCellStyle
		})
	fmt.Println(t.Render())
	return nil
}

func statusLabel(code int) string {
	return fmt.Sprintf("%d (%s)", code, types.Status(code))
}
