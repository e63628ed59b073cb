package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Brand color palette
var (
	// Primary Brand Colors (Bookmark Amber)
	colorPrimary      = lipgloss.Color("#D97706") // Bookmark Amber - main brand
	colorPrimaryLight = lipgloss.Color("#FBBF24") // Light Amber - highlights
	colorPrimaryDark  = lipgloss.Color("#B45309") // Dark Amber - active states

	// Neutral Colors
	colorText  = lipgloss.Color("#F5F5F4") // Paper White - primary text
	colorMuted = lipgloss.Color("240")     // Muted gray for secondary text

	// State Colors
	colorSuccess = lipgloss.Color("#22C55E") // Success green
	colorWarning = lipgloss.Color("#F59E0B") // Warning amber
	colorError   = lipgloss.Color("#EF4444") // Error red
)

// Styles
var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle   = lipgloss.NewStyle().Foreground(colorPrimaryLight).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)
	titleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	domainStyle  = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// Icons
const (
	iconSuccess  = "✓"
	iconError    = "✗"
	iconWarning  = "⚠"
	iconInfo     = "●"
	iconFavorite = "★"
	iconPending  = "↻"
)

// TTY override for tests; nil means real detection.
var (
	testIsTTYMutex    sync.Mutex
	testIsTTYOverride *bool
)

// isTTY returns true if stdout is a terminal
func isTTY() bool {
	testIsTTYMutex.Lock()
	override := testIsTTYOverride
	testIsTTYMutex.Unlock()
	if override != nil {
		return *override
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printStyled prints a message with an icon, applying style only in TTY mode
func printStyled(w io.Writer, icon string, style lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", style.Render(icon), msg)
	} else {
		fmt.Fprintf(w, "%s %s\n", icon, msg)
	}
}

// printSuccess prints a success message with green checkmark
func printSuccess(w io.Writer, format string, args ...any) {
	printStyled(w, iconSuccess, successStyle, format, args...)
}

// printError prints an error message with red X
func printError(w io.Writer, format string, args ...any) {
	printStyled(w, iconError, errorStyle, format, args...)
}

// printWarning prints a warning message with amber warning sign
func printWarning(w io.Writer, format string, args ...any) {
	printStyled(w, iconWarning, warningStyle, format, args...)
}

// printInfo prints an info message with brand-colored dot
func printInfo(w io.Writer, format string, args ...any) {
	printStyled(w, iconInfo, infoStyle, format, args...)
}

// printMuted prints muted/secondary text
func printMuted(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintln(w, mutedStyle.Render(msg))
	} else {
		fmt.Fprintln(w, msg)
	}
}

// printLabel prints a styled field label without a trailing newline
func printLabel(w io.Writer, label string) {
	if isTTY() {
		fmt.Fprint(w, labelStyle.Render(label))
	} else {
		fmt.Fprint(w, label)
	}
}

// styleTitle renders an article title, bold in TTY mode
func styleTitle(s string) string {
	if isTTY() {
		return titleStyle.Render(s)
	}
	return s
}

// styleDomain renders a source domain in the brand highlight color
func styleDomain(s string) string {
	if isTTY() {
		return domainStyle.Render(s)
	}
	return s
}

// renderMarkdown renders markdown content (article notes) with glamour
func renderMarkdown(content string) string {
	if !isTTY() {
		return content
	}

	if !hasMarkdown(content) {
		return content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimSpace(rendered)
}

// hasMarkdown checks if content contains markdown-like syntax.
// Ordered from most specific to least to reduce false positives.
func hasMarkdown(content string) bool {
	markers := []string{
		"```",    // code blocks (most specific)
		"## ",    // headers
		"# ",     // headers
		"**",     // bold
		"1. ",    // numbered lists
		"- ",     // list items
		"* ",     // list items
		"](http", // links with URL
		"`",      // inline code (last, most prone to false positives)
	}
	for _, marker := range markers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
