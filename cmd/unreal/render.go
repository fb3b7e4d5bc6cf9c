package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ajharshal45/UnReal-Extension-sub001/internal/service"
)

var (
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func verdictLine(res *service.FinalResult) string {
	label := "LIKELY AUTHENTIC"
	paint := green
	switch {
	case res.IsAIGenerated:
		label, paint = "LIKELY AI-GENERATED", red
	case res.RiskLevel == service.RiskMedium:
		label, paint = "UNCERTAIN", yellow
	}
	return fmt.Sprintf("%s  score %.1f/100  risk %s  confidence %.0f%%",
		paint(label), res.Score, res.RiskLevel, res.Confidence)
}

func layerTable(res *service.FinalResult, markdown bool) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Layer", "Score", "Confidence", "Findings", "Time (ms)", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for _, l := range res.Layers {
		status := "ok"
		score, conf := fmt.Sprintf("%.1f", l.Score), fmt.Sprintf("%.0f", l.Confidence)
		if !l.Available {
			status = "skipped: " + l.Reason
			score, conf = "-", "-"
		}
		t.AppendRow(table.Row{l.Layer, score, conf, l.FindingCount, fmt.Sprintf("%.1f", l.ProcessingTimeMs), status})
	}
	if markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

// renderResult formats a result for a terminal or, with markdown set, for
// pasting into an issue.
func renderResult(res *service.FinalResult, markdown, verbose bool) string {
	var b strings.Builder
	b.WriteString(verdictLine(res))
	b.WriteString("\n\n")
	b.WriteString(layerTable(res, markdown))
	b.WriteString("\n")

	if len(res.Findings) > 0 {
		b.WriteString("\nFindings:\n")
		for _, f := range res.Findings {
			fmt.Fprintf(&b, "  [%s %.0f%%] %s\n", f.Layer, f.Confidence, f.Description)
		}
	}
	if res.Reasoning != "" {
		fmt.Fprintf(&b, "\n%s\n", res.Reasoning)
	}
	if verbose {
		b.WriteString("\nDecision trail:\n")
		for _, step := range res.LogicTrail {
			fmt.Fprintf(&b, "  %s\n", faint(step))
		}
	}
	return b.String()
}
