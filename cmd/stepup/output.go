package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

// printStatus writes an aligned "label: value" line to stdout.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, fmt.Sprintf("%-12s", label+":"))
	fmt.Fprintf(os.Stdout, "  %s %s\n", l, val)
}

// statusColor renders an elicitation status: green when completed, red for
// the other terminal states, yellow while outstanding.
func statusColor(status string) string {
	switch status {
	case "completed":
		return colorize(colorGreen, status)
	case "failed", "expired", "cancelled":
		return colorize(colorRed, status)
	default:
		return colorize(colorYellow, status)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
