package utils

import (
	"strings"

	"github.com/emersion/go-imap"
)

// HasFlag compares flags case-insensitively, IMAP system flags are not case sensitive.
func HasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// SetFlag returns a new flag list with flag added or removed. Order of the
// remaining flags is preserved and the input is never modified.
func SetFlag(flags []string, flag string, present bool) []string {
	result := make([]string, 0, len(flags)+1)
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			continue
		}
		result = append(result, f)
	}
	if present {
		result = append(result, flag)
	}
	return result
}

func IsSeen(flags []string) bool {
	return HasFlag(flags, imap.SeenFlag)
}

func IsFlagged(flags []string) bool {
	return HasFlag(flags, imap.FlaggedFlag)
}
