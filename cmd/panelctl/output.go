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
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// NetPanel color palette - signal greens and console ambers
var (
	ColorAccent  = lipgloss.Color("#3FB950") // Signal green - headings, success
	ColorInfo    = lipgloss.Color("#58A6FF") // Link blue - values, highlights
	ColorWarning = lipgloss.Color("#D29922") // Amber for warnings
	ColorError   = lipgloss.Color("#F85149") // Red for errors
	ColorMuted   = lipgloss.Color("#8B949E") // Gray for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Success:   lipgloss.NewStyle().Foreground(ColorAccent),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Highlight: lipgloss.NewStyle().Foreground(ColorInfo).Bold(true),
}

// styled reports whether output should carry color. Pipes and CI get plain
// text so the stream stays grep-able.
func styled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func render(style lipgloss.Style, text string) string {
	if !styled() {
		return text
	}
	return style.Render(text)
}

func printTitle(text string)   { fmt.Println(render(Styles.Title, text)) }
func printSuccess(text string) { fmt.Println(render(Styles.Success, "✓ "+text)) }
func printWarning(text string) { fmt.Println(render(Styles.Warning, "⚠ "+text)) }
func printError(text string)   { fmt.Println(render(Styles.Error, "✗ "+text)) }
func printMuted(text string)   { fmt.Println(render(Styles.Muted, text)) }

// printEvent renders one progress stream event to the terminal. The
// "finished" framing event is silent; the terminal status before it already
// told the user how the run ended.
func printEvent(ev datatypes.StreamEvent) {
	switch {
	case ev.Status == datatypes.StatusFinished:
	case ev.Status == datatypes.StatusError:
		printError(ev.Message)
	case ev.Status == datatypes.StatusSuccess:
		printSuccess(ev.Message)
	case ev.Status == datatypes.StatusRestarting:
		printSuccess(ev.Message)
	case ev.Warning:
		printWarning(ev.Log)
	case ev.Log != "":
		fmt.Println(ev.Log)
	}
}
