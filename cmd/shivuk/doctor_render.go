package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"shivuk/internal/preflight"
)

const checkNameWidth = 24

const (
	colorReset = "\x1b[0m"
	colorPass  = "\x1b[32m"
	colorFail  = "\x1b[31m"
	colorNote  = "\x1b[33m"
)

// renderCheck formats one preflight result as "name  pass|FAIL  detail".
func renderCheck(r preflight.Result, colorize bool) string {
	verdict, color := "pass", colorPass
	if !r.Passed {
		verdict, color = "FAIL", colorFail
	}
	if colorize {
		verdict = color + verdict + colorReset
	}
	line := fmt.Sprintf("%-*s %s", checkNameWidth, r.Name, verdict)
	if detail := strings.TrimSpace(r.Detail); detail != "" {
		line += "  " + detail
	}
	return line
}

func renderCheckSummary(results []preflight.Result, offline, colorize bool) string {
	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	summary := fmt.Sprintf("%d checks, %d failed", len(results), failed)
	if offline {
		note := "generation API not contacted (--offline)"
		if colorize {
			note = colorNote + note + colorReset
		}
		summary += "; " + note
	}
	return summary
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
