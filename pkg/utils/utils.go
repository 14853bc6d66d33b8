package utils

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a random 32-char hex identifier.
func GenerateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateTicketID returns an INC-prefixed ticket number for tickets opened
// by response actions.
func GenerateTicketID() string {
	return "INC-" + strings.ToUpper(GenerateID()[:9])
}

// FormatTime renders t in the log timestamp layout.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
