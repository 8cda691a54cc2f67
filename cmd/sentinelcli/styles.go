// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian terminal palette.
var (
	colorTeal    = lipgloss.Color("#2CD7C7")
	colorGold    = lipgloss.Color("#F4D03F")
	colorRed     = lipgloss.Color("#E74C3C")
	colorSlate   = lipgloss.Color("#2C4A54")
	colorDeepSea = lipgloss.Color("#104855")
)

// plainOutput reports whether styled output should be suppressed: piped
// stdout, or NO_COLOR per convention.
func plainOutput() bool {
	if os.Getenv("NO_COLOR") != "" {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// style returns s unless output is plain, in which case rendering becomes
// a pass-through.
func style(s lipgloss.Style) lipgloss.Style {
	if plainOutput() {
		return lipgloss.NewStyle()
	}
	return s
}

func titleStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Bold(true).Foreground(colorTeal))
}

func headingStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Bold(true).Foreground(colorDeepSea))
}

func mutedStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Foreground(colorSlate))
}

func okStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Foreground(colorTeal))
}

func warnStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Foreground(colorGold))
}

func errStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().Foreground(colorRed))
}

func boxStyle() lipgloss.Style {
	return style(lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorDeepSea).
		Padding(0, 1))
}
