package master

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/cuemby/burrow/pkg/ipc"
)

var (
	startInfoHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#7C3AED")).
				Padding(0, 1)

	startInfoCellStyle = lipgloss.NewStyle().
				Padding(0, 1)

	startInfoBorderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6B7280"))
)

// collectStartInfo buffers one startup report per worker and prints them as
// a table once the configured worker count has reported. Must be called with
// mu held.
func (m *Master) collectStartInfo(msg *ipc.Message) {
	row, ok := msg.Body["data"].(map[string]any)
	if !ok {
		row = make(map[string]any, len(msg.Body))
		for k, v := range msg.Body {
			row[k] = v
		}
	}
	m.startInfo = append(m.startInfo, row)

	if len(m.startInfo) < m.cfg.Workers() {
		return
	}
	fmt.Fprintln(m.output, renderStartInfo(m.startInfo))
	m.startInfo = nil
}

// renderStartInfo lays out rows as a table; columns are the union of keys
func renderStartInfo(rows []map[string]any) string {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(startInfoBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return startInfoHeaderStyle
			}
			return startInfoCellStyle
		})

	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := row[h]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t.Row(cells...)
	}
	return t.Render()
}
