// Package appid generates short, opaque identifiers suitable for users to
// quote in bug reports and for developers to grep logs by.
package appid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a short id derived from a random UUID: the first 8 hex
// characters of its no-dash form, e.g. "a3f9c012". It is not meant to be
// globally unique, only unique enough to correlate one error occurrence in
// logs with what a user reports.
func New() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
