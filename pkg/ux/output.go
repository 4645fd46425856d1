// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the revert CLI.
//
// All output goes to a Printer's writer, normally os.Stderr, so that stdout
// stays a clean stream of inverse edits.
package ux

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealPrimary).Bold(true),

	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Mode selects how a Printer renders.
type Mode int

const (
	// ModeStyled renders colours, icons and boxes.
	ModeStyled Mode = iota

	// ModePlain renders icons without colour.
	ModePlain

	// ModeMachine renders "LEVEL: text" lines for scripts.
	ModeMachine
)

// DetectMode returns ModeStyled when f is a terminal and ModePlain otherwise.
func DetectMode(f *os.File) Mode {
	if f == nil {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeStyled
	}
	return ModePlain
}

// Printer writes status lines.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a Printer writing to w in mode.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's render mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
		return
	case ModePlain:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "OK: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "WARN: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// ErrorBox prints an error with a hint in a box. The hint may be empty.
func (p *Printer) ErrorBox(title, hint string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "ERROR: %s\n", title)
		if hint != "" {
			fmt.Fprintf(p.w, "HINT: %s\n", hint)
		}
	case ModePlain:
		p.Error(title)
		if hint != "" {
			fmt.Fprintf(p.w, "  %s %s\n", IconArrow, hint)
		}
	default:
		content := Styles.Error.Bold(true).Render(title)
		if hint != "" {
			content += "\n" + Styles.Muted.Render(string(IconArrow)+" "+hint)
		}
		fmt.Fprintln(p.w, Styles.ErrorBox.Render(content))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	switch p.mode {
	case ModeStyled:
		fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
	default:
		fmt.Fprintln(p.w, text)
	}
}

// Summary prints the counts of a completed run.
func (p *Printer) Summary(deltas int64, features, written int) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "SUMMARY: deltas=%d features=%d written=%d\n", deltas, features, written)
	case ModePlain:
		fmt.Fprintf(p.w, "%d deltas  %d features  %d inverses written\n", deltas, features, written)
	default:
		fmt.Fprintf(p.w, "%s %s  %s %s  %s %s\n",
			Styles.Bold.Render(fmt.Sprintf("%d", deltas)), Styles.Muted.Render("deltas"),
			Styles.Bold.Render(fmt.Sprintf("%d", features)), Styles.Muted.Render("features"),
			Styles.Highlight.Render(fmt.Sprintf("%d", written)), Styles.Muted.Render("inverses written"),
		)
	}
}
