package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"sleuth/internal/agent"
	"sleuth/internal/metrics"
)

// Color scheme - professional dark blue theme
var (
	colorPrimary   = [3]int{30, 58, 95}    // Dark navy
	colorAccent    = [3]int{46, 204, 113}  // Green
	colorWarning   = [3]int{241, 196, 15}  // Yellow
	colorDanger    = [3]int{231, 76, 60}   // Red
	colorTextDark  = [3]int{44, 62, 80}    // Dark text
	colorTextMuted = [3]int{127, 140, 141} // Muted text
	colorCodeBg    = [3]int{248, 249, 250} // Command block bg
	colorGridLine  = [3]int{220, 220, 220} // Box borders
)

// Output shown per step before the full findings section.
const stepOutputLimit = 1200

// Generator renders investigation runs as PDF documents.
type Generator struct{}

// NewGenerator creates a new PDF generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a PDF report for the given run.
func (g *Generator) Generate(run agent.Run) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)

	pdf.AddPage()
	g.writeHeader(pdf, run)
	g.writeOverview(pdf, run)
	g.writeSteps(pdf, run)
	g.writeFindings(pdf, run)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}

	return buf.Bytes(), nil
}

func (g *Generator) writeHeader(pdf *fpdf.Fpdf, run agent.Run) {
	pageWidth, _ := pdf.GetPageSize()

	// Top accent bar
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 12, "SLEUTH", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, "Investigation Report", "", 1, "L", false, 0, "")

	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.SetLineWidth(0.3)
	pdf.Line(20, pdf.GetY()+3, pageWidth-20, pdf.GetY()+3)
	pdf.SetY(pdf.GetY() + 8)
}

func (g *Generator) writeOverview(pdf *fpdf.Fpdf, run agent.Run) {
	pageWidth, _ := pdf.GetPageSize()

	// Outcome card
	label, color := outcomeBadge(run.Outcome)
	cardX := 20.0
	cardWidth := pageWidth - 40

	pdf.SetFillColor(color[0], color[1], color[2])
	pdf.RoundedRect(cardX, pdf.GetY(), cardWidth, 16, 3, "1234", "F")

	pdf.SetXY(cardX, pdf.GetY()+4)
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(cardWidth, 8, label, "", 1, "C", false, 0, "")

	pdf.SetY(pdf.GetY() + 10)

	g.writeField(pdf, "Instruction:", run.Instruction)
	g.writeField(pdf, "Run ID:", run.ID)
	g.writeField(pdf, "Started:", run.StartedAt.Format("January 2, 2006 15:04:05 MST"))
	if !run.CompletedAt.IsZero() {
		g.writeField(pdf, "Duration:", formatDuration(run.CompletedAt.Sub(run.StartedAt)))
	}
	g.writeField(pdf, "Commands:", fmt.Sprintf("%d", len(run.Steps)))

	pdf.Ln(4)
}

func (g *Generator) writeField(pdf *fpdf.Fpdf, label, value string) {
	pdf.SetX(20)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(28, 6, label, "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.MultiCell(0, 6, sanitizeText(value), "", "L", false)
}

func (g *Generator) writeSteps(pdf *fpdf.Fpdf, run agent.Run) {
	g.writeSectionTitle(pdf, "Diagnostic Steps")

	if len(run.Steps) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 8, "No commands were executed.", "", 1, "L", false, 0, "")
		pdf.Ln(2)
		return
	}

	pageWidth, _ := pdf.GetPageSize()

	for i, step := range run.Steps {
		if pdf.GetY() > 230 {
			pdf.AddPage()
		}

		// Step heading with exit code on the right
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(pageWidth-70, 7, fmt.Sprintf("Step %d", i+1), "", 0, "L", false, 0, "")

		exitColor := colorAccent
		if step.ExitCode != 0 {
			exitColor = colorDanger
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.SetTextColor(exitColor[0], exitColor[1], exitColor[2])
		pdf.CellFormat(0, 7, fmt.Sprintf("exit %d", step.ExitCode), "", 1, "R", false, 0, "")

		if step.Thought != "" {
			pdf.SetFont("Arial", "I", 9)
			pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
			pdf.MultiCell(0, 5, sanitizeText(step.Thought), "", "L", false)
			pdf.Ln(1)
		}

		// Command block
		pdf.SetFillColor(colorCodeBg[0], colorCodeBg[1], colorCodeBg[2])
		pdf.SetFont("Courier", "B", 9)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.MultiCell(0, 6, sanitizeText("$ "+step.Command), "", "L", true)
		pdf.Ln(1)

		if out := strings.TrimSpace(step.Stdout); out != "" {
			g.writeOutput(pdf, "stdout", out)
		}
		if errOut := strings.TrimSpace(step.Stderr); errOut != "" {
			g.writeOutput(pdf, "stderr", errOut)
		}

		pdf.Ln(4)
	}
}

func (g *Generator) writeOutput(pdf *fpdf.Fpdf, label, text string) {
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 4, label, "", 1, "L", false, 0, "")

	pdf.SetFont("Courier", "", 8)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.MultiCell(0, 4, sanitizeText(truncateText(text, stepOutputLimit)), "", "L", false)
	pdf.Ln(1)
}

func (g *Generator) writeFindings(pdf *fpdf.Fpdf, run agent.Run) {
	if run.Report == "" {
		return
	}

	if pdf.GetY() > 200 {
		pdf.AddPage()
	}
	g.writeSectionTitle(pdf, "Findings")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.MultiCell(0, 5, sanitizeText(run.Report), "", "L", false)
}

func (g *Generator) writeSectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func outcomeBadge(outcome string) (string, [3]int) {
	switch outcome {
	case metrics.OutcomeFinal:
		return "ROOT CAUSE IDENTIFIED", colorAccent
	case metrics.OutcomeLimit:
		return "STEP LIMIT REACHED", colorWarning
	case metrics.OutcomeFault:
		return "BRAIN FAULT", colorDanger
	default:
		return strings.ToUpper(outcome), colorTextMuted
	}
}

// sanitizeText reduces a string to the printable ASCII subset the core PDF
// fonts can render. Newlines and tabs survive, everything else outside the
// range is dropped.
func sanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r >= 0x20 && r < 0x7F:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
