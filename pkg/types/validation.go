package types

import "regexp"

// Compiled once at package initialization; username checks run on every
// connection attempt.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUsername checks if a username meets format requirements: 1-50
// characters, alphanumeric plus underscore/hyphen, and not the reserved
// system sender identity.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > 50 {
		return false
	}
	if IsSystemSender(username) {
		return false
	}
	return usernameRegex.MatchString(username)
}

// IsValidCommand checks if the command is one of the eight recognized tags.
// The router treats unrecognized commands as no-ops, but the connection layer
// uses this to log them on arrival.
func IsValidCommand(command string) bool {
	switch command {
	case CommandMessage,
		CommandWebNoti,
		CommandFile,
		CommandTake,
		CommandSetTutor,
		CommandConnectedUsers,
		CommandRelease,
		CommandNeedHelp:
		return true
	default:
		return false
	}
}
