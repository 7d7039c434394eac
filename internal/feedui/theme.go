package feedui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette of the feed browser. Colors are ANSI
// 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	HelpText         lipgloss.Color

	// Kind accents for the first line of each item.
	TextAccent  lipgloss.Color
	ImageAccent lipgloss.Color
	CardAccent  lipgloss.Color

	TagSelectedBackground lipgloss.Color
	TagSelectedForeground lipgloss.Color

	ErrorForeground lipgloss.Color
	EndForeground   lipgloss.Color
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText:            lipgloss.Color("252"),
	FaintText:             lipgloss.Color("243"),
	HeaderForeground:      lipgloss.Color("39"),
	HelpText:              lipgloss.Color("241"),
	TextAccent:            lipgloss.Color("252"),
	ImageAccent:           lipgloss.Color("176"),
	CardAccent:            lipgloss.Color("114"),
	TagSelectedBackground: lipgloss.Color("25"),
	TagSelectedForeground: lipgloss.Color("231"),
	ErrorForeground:       lipgloss.Color("203"),
	EndForeground:         lipgloss.Color("243"),
}
