package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/mxload/internal/metrics"
)

type RenderOptions struct {
	Duration time.Duration
}

// row is one endpoint's aggregated tally: successes versus everything else.
type row struct {
	endpoint string
	ok       uint64
	failed   uint64
}

func aggregate(stats []metrics.RequestStat) []row {
	byEndpoint := map[string]*row{}
	for _, stat := range stats {
		r, exists := byEndpoint[stat.Endpoint]
		if !exists {
			r = &row{endpoint: stat.Endpoint}
			byEndpoint[stat.Endpoint] = r
		}
		if stat.Result == metrics.ResultOK {
			r.ok += stat.Count
		} else {
			r.failed += stat.Count
		}
	}

	rows := make([]row, 0, len(byEndpoint))
	for _, r := range byEndpoint {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].endpoint < rows[j].endpoint })
	return rows
}

func renderView(stats []metrics.RequestStat, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Load Run Summary"),
	}
	if opts.Duration > 0 {
		lines = append(lines, s.header.Render(fmt.Sprintf("duration: %s", opts.Duration.Round(time.Second))))
	}

	rows := aggregate(stats)
	if len(rows) == 0 {
		lines = append(lines, s.empty.Render("No requests recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	width := len("endpoint")
	for _, r := range rows {
		if len(r.endpoint) > width {
			width = len(r.endpoint)
		}
	}

	var totalOK, totalFailed uint64
	table := []string{
		s.header.Render(fmt.Sprintf("%-*s %10s %10s", width, "endpoint", "ok", "failed")),
	}
	for _, r := range rows {
		totalOK += r.ok
		totalFailed += r.failed
		failed := s.count.Render(fmt.Sprintf("%10d", r.failed))
		if r.failed > 0 {
			failed = s.failure.Render(fmt.Sprintf("%10d", r.failed))
		}
		table = append(table, lipgloss.JoinHorizontal(
			lipgloss.Top,
			s.endpoint.Render(fmt.Sprintf("%-*s", width, r.endpoint)),
			" ",
			s.count.Render(fmt.Sprintf("%10d", r.ok)),
			" ",
			failed,
		))
	}
	table = append(table, s.count.Render(
		fmt.Sprintf("%-*s %10d %10d", width, "total", totalOK, totalFailed)))

	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, table...)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
