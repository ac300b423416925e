package tui

import (
	"rejectiondash/internal/model"
	"rejectiondash/internal/scan"

	"golang.org/x/oauth2"
)

// Async message types for Bubble Tea commands.

type authURLMsg string

type authResultMsg struct {
	tokens  oauth2.TokenSource
	profile model.UserProfile
	err     error
}

type scanProgressMsg scan.Progress

type scanCompleteMsg struct {
	stats model.RejectionStats
	err   error
}

type statusMsg string
