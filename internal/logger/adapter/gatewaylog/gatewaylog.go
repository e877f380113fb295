// Package gatewaylog routes the discordgo library log output into zerolog.
package gatewaylog

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a textual level to the discordgo log level, defaulting to warnings.
func ParseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return discordgo.LogError
	case "info":
		return discordgo.LogInformational
	case "debug", "trace":
		return discordgo.LogDebug
	default:
		return discordgo.LogWarning
	}
}

func zerologLevel(msgL int) zerolog.Level {
	switch msgL {
	case discordgo.LogError:
		return zerolog.ErrorLevel
	case discordgo.LogWarning:
		return zerolog.WarnLevel
	case discordgo.LogInformational:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

// Func has the signature of discordgo.Logger.
func Func(msgL, _ int, format string, a ...any) {
	log.WithLevel(zerologLevel(msgL)).
		Str("component", "discordgo").
		Msg(fmt.Sprintf(format, a...))
}

// Install replaces the package level discordgo logger.
func Install() {
	discordgo.Logger = Func
}
