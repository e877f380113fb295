package discord

import "errors"

// ErrNoToken is returned when no bot token is configured.
var ErrNoToken = errors.New("discord token is empty")
