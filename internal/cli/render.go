package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/boq-price-match/internal/model"
)

// RenderMatch formats a single match result with its alternatives.
func RenderMatch(q model.MatchQuery, res *model.MatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", q.Description)
	if len(q.ContextHeaders) > 0 {
		fmt.Fprintf(&b, "Context: %s\n", strings.Join(q.ContextHeaders, " > "))
	}
	fmt.Fprintf(&b, "Method: %s", res.Method)
	if res.Method != res.RequestedMethod && res.RequestedMethod != "" {
		fmt.Fprintf(&b, " (requested %s)", res.RequestedMethod)
	}
	fmt.Fprintf(&b, "\nConfidence: %s\n\n", confidenceStyle(res.Confidence).Render(fmt.Sprintf("%.0f%%", res.Confidence*100)))

	if res.ChosenItem != nil {
		it := res.ChosenItem
		b.WriteString(FormatSuccess(fmt.Sprintf("%s  %s  %.2f/%s", it.Code, it.Description, it.Rate, it.Unit)))
		if res.IsLearnedMatch {
			b.WriteString(" " + BrainIcon)
		}
	} else {
		b.WriteString(FormatWarning("No confident match"))
	}
	b.WriteString("\n")

	for _, w := range res.Warnings {
		b.WriteString(SubtleStyle.Render("  "+w) + "\n")
	}

	if len(res.Alternatives) > 0 {
		b.WriteString("\n" + renderCandidates(res.Alternatives))
	}
	return RenderBox("Match", strings.TrimRight(b.String(), "\n"))
}

func renderCandidates(cands []model.MatchCandidate) string {
	rows := make([][]string, 0, len(cands))
	for i, c := range cands {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			c.Item.Code,
			truncate(c.Item.Description, 48),
			c.Item.Unit,
			fmt.Sprintf("%.2f", c.Item.Rate),
			fmt.Sprintf("%.3f", c.Score),
		})
	}
	return renderTable([]string{"#", "Code", "Description", "Unit", "Rate", "Score"}, rows)
}

// RenderJob summarizes a finished match job.
func RenderJob(job model.MatchJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job: %s\n", job.ID)
	fmt.Fprintf(&b, "Method: %s\n", job.Method)
	fmt.Fprintf(&b, "Status: %s\n", statusStyle(job.Status).Render(string(job.Status)))
	fmt.Fprintf(&b, "Items: %d processed of %d\n", job.Processed, job.Total)
	fmt.Fprintf(&b, "Matched: %d\n", job.Matched)
	if n := len(job.Errors); n > 0 {
		fmt.Fprintf(&b, "Failed: %s\n", ErrorStyle.Render(fmt.Sprintf("%d", n)))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(&b, "Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Millisecond))
	}
	if job.Message != "" {
		b.WriteString(SubtleStyle.Render(job.Message))
	}
	return RenderBox("Match Job", strings.TrimRight(b.String(), "\n"))
}

// RenderJobs lists jobs, newest first.
func RenderJobs(jobs []model.MatchJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			j.StartedAt.Format("2006-01-02 15:04"),
			j.Method,
			statusStyle(j.Status).Render(string(j.Status)),
			fmt.Sprintf("%d/%d", j.Matched, j.Total),
		})
	}
	return renderTable([]string{"ID", "Started", "Method", "Status", "Matched"}, rows)
}

// RenderPatterns lists learned patterns.
func RenderPatterns(patterns []model.LearnedPattern) string {
	rows := make([][]string, 0, len(patterns))
	for _, p := range patterns {
		rows = append(rows, []string{
			truncate(p.NormalizedDescription, 40),
			truncate(strings.Join(p.ContextHeaders, " > "), 30),
			p.ChosenItemCode,
			fmt.Sprintf("%d", p.UsageCount),
			p.LastUsedAt.Format("2006-01-02"),
		})
	}
	return renderTable([]string{"Description", "Context", "Code", "Uses", "Last used"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = TableCellStyle.Width(widths[i] + 2).Render(c)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}

	out := []string{line(headers, TableHeaderStyle)}
	for _, row := range rows {
		out = append(out, line(row, lipgloss.NewStyle()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
