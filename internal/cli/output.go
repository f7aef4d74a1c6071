package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ict-signals/internal/models"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return NewOutputTo(cmd.OutOrStdout(), jsonMode, !jsonMode && !color.NoColor && cmd.OutOrStdout() == os.Stdout)
}

// NewOutputTo writes to w.
func NewOutputTo(w io.Writer, jsonMode, colorEnabled bool) *Output {
	return &Output{writer: w, jsonMode: jsonMode, colorEnabled: colorEnabled}
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.line(color.New(color.FgGreen), format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.line(color.New(color.FgRed), format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.line(color.New(color.FgYellow), format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.line(color.New(color.FgCyan), format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.line(color.New(color.Bold), format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.line(color.New(color.Faint), format, args...)
}

func (o *Output) line(c *color.Color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(c, fmt.Sprintf(format, args...)))
}

func (o *Output) paint(c *color.Color, text string) string {
	if !o.colorEnabled {
		return text
	}
	c.EnableColor()
	return c.Sprint(text)
}

// Green colors text green.
func (o *Output) Green(text string) string { return o.paint(color.New(color.FgGreen), text) }

// Red colors text red.
func (o *Output) Red(text string) string { return o.paint(color.New(color.FgRed), text) }

// Yellow colors text yellow.
func (o *Output) Yellow(text string) string { return o.paint(color.New(color.FgYellow), text) }

// BoldText makes text bold.
func (o *Output) BoldText(text string) string { return o.paint(color.New(color.Bold), text) }

// DirectionText colors a direction: BUY green, SELL red, HOLD yellow.
func (o *Output) DirectionText(d models.Direction) string {
	switch d {
	case models.DirectionBuy:
		return o.paint(color.New(color.FgGreen, color.Bold), string(d))
	case models.DirectionSell:
		return o.paint(color.New(color.FgRed, color.Bold), string(d))
	default:
		return o.paint(color.New(color.FgYellow, color.Bold), string(d))
	}
}

// BiasText colors a bias label.
func (o *Output) BiasText(bias string) string {
	switch {
	case strings.HasPrefix(bias, "BULL"):
		return o.Green(bias)
	case strings.HasPrefix(bias, "BEAR"):
		return o.Red(bias)
	default:
		return bias
	}
}

// QualityText colors a signal quality.
func (o *Output) QualityText(q models.SignalQuality) string {
	switch q {
	case models.QualityExcellent, models.QualityVeryGood:
		return o.Green(string(q))
	case models.QualityPoor:
		return o.Red(string(q))
	default:
		return o.Yellow(string(q))
	}
}

// Table represents a simple text table.
type Table struct {
	output  *Output
	headers []string
	rows    [][]string
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{output: output, headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the table with columns sized to their widest cell.
func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	t.output.Println(strings.Join(seps, "  "))
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	parts := make([]string, len(widths))
	for i := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := strings.Repeat(" ", widths[i]-visibleLen(cell))
		if isHeader {
			cell = t.output.BoldText(cell)
		}
		parts[i] = cell + pad
	}
	t.output.Println(strings.TrimRight(strings.Join(parts, "  "), " "))
}

// visibleLen measures s without color escapes.
func visibleLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
