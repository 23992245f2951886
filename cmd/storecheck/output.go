package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/store"
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

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// statusColor maps a report status onto its display color.
func statusColor(s compare.Status) string {
	switch s {
	case compare.StatusOK:
		return colorGreen
	case compare.StatusWarning:
		return colorYellow
	default:
		return colorRed
	}
}

// printStatusLine renders one batch row: id, status, problem codes.
func printStatusLine(id string, rep compare.Report) {
	codes := make([]string, 0, len(rep.Problems))
	for _, p := range rep.Problems {
		codes = append(codes, string(p.Code))
	}
	line := fmt.Sprintf("%s  %s", colorize(statusColor(rep.Status), string(rep.Status)), id)
	if len(codes) > 0 {
		line += "  " + strings.Join(codes, ",")
	}
	fmt.Fprintln(os.Stdout, line)
}

func printSnapshots(snaps []store.Snapshot) {
	fmt.Fprintln(os.Stderr, colorize(colorBold, "Stores:"))
	for _, s := range snaps {
		switch {
		case s.Fault != nil:
			printStatus(s.Store, "%s (%s)", colorize(colorRed, string(s.Fault.Reason)), s.Fault.Detail)
		case !s.Found:
			printStatus(s.Store, "%s", colorize(colorYellow, "not found"))
		default:
			detail := fmt.Sprintf("found, checksum %s", s.Checksum)
			if s.TTLSeconds != nil {
				detail += fmt.Sprintf(", ttl %ds", *s.TTLSeconds)
			}
			printStatus(s.Store, "%s", detail)
		}
	}
}

func printReport(rep compare.Report) {
	fmt.Fprintf(os.Stderr, "%s %s\n",
		colorize(colorBold, "Status:"), colorize(statusColor(rep.Status), string(rep.Status)))

	for _, p := range rep.Problems {
		if p.Severity == compare.SeverityError {
			printError("%s: %s", p.Code, p.Message)
		} else {
			printWarning("%s: %s", p.Code, p.Message)
		}
	}

	for _, d := range rep.FieldDiffs {
		fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ field "+d.Field))
		names := make([]string, 0, len(d.Values))
		for n := range d.Values {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			v := "null"
			if d.Values[n] != nil {
				v = *d.Values[n]
			}
			printStatus(n, "%s", v)
		}
	}

	for _, e := range rep.EmbeddingDiffs {
		fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ embedding "+e.Model))
		names := make([]string, 0, len(e.Fingerprints))
		for n := range e.Fingerprints {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			printStatus(n, "%s (dim %d)", e.Fingerprints[n], e.Dimensions[n])
		}
	}

	if rep.Status == compare.StatusOK {
		printSuccess("stores are consistent")
	}
}
