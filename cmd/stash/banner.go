package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Bookmark ribbon styles using shared brand colors from styles.go
	bannerRibbonStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerNotchStyle   = lipgloss.NewStyle().Foreground(colorPrimaryDark)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func renderBanner() string {
	bar := bannerRibbonStyle.Render("┃")
	notchL := bannerNotchStyle.Render("╲")
	notchR := bannerNotchStyle.Render("╱")
	title := bannerTitleStyle.Render("STASH")

	// A bookmark ribbon hanging beside the wordmark
	lines := []string{
		"  " + bar + bar,
		"  " + bar + bar + "   " + title,
		"  " + bar + bar,
		"  " + notchR + notchL,
	}

	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	banner := renderBanner()
	tagline := bannerTaglineStyle.Render("  saved for later, kept in sync")
	ver := bannerVersionStyle.Render("  " + version)

	return strings.Join([]string{banner, tagline, ver}, "\n")
}
