package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarn      = lipgloss.Color("214") // Orange
	colorDanger    = lipgloss.Color("196") // Red
)

// SelectedItem style for the currently highlighted item.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected items.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// ParamText style for generation parameters after the prompt.
var ParamText = lipgloss.NewStyle().
	Foreground(colorMuted)

// Header style for the feed title line.
var Header = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// Status badges, one per feed status label.
var (
	BadgeLive = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorSuccess).
			Padding(0, 1)

	BadgePaused = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(colorSecondary).
			Padding(0, 1)

	BadgePending = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(colorWarn).
			Padding(0, 1)
)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// StatusBarWarn style for the latest warning shown in the status bar.
var StatusBarWarn = lipgloss.NewStyle().
	Foreground(colorWarn)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// SavedMark style for items persisted to the gallery.
var SavedMark = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// FailedMark style for items whose save failed.
var FailedMark = lipgloss.NewStyle().
	Foreground(colorDanger).
	Bold(true)

// SpinnerStyle colors the in-flight save spinner.
var SpinnerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#3fb950"))

// DebugPanel frames the event overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// DebugHeaderStyle for section titles inside the overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
