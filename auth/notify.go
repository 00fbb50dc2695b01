package auth

import "github.com/rs/zerolog"

// Notifier shows short user-facing messages.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Navigator moves the user to the entry (login) view.
type Navigator interface {
	NavigateToEntry()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) NavigateToEntry() { f() }

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Success(message string) {
	n.Logger.Info().Str("notification", message).Msg("notify")
}

func (n LogNotifier) Error(message string) {
	n.Logger.Warn().Str("notification", message).Msg("notify")
}

type logNavigator struct {
	logger zerolog.Logger
}

func (n logNavigator) NavigateToEntry() {
	n.logger.Debug().Msg("navigate to entry view")
}
