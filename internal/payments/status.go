package payments

import "strings"

// Normalized status vocabulary exposed to callers.
const (
	StatusNew        = "New"
	StatusProcessing = "Processing"
	StatusPaid       = "Paid"
	StatusExpired    = "Expired"
	StatusInvalid    = "Invalid"
	StatusNotFound   = "Not Found"
)

// statusTable maps lower-cased provider statuses onto the normalized vocabulary.
var statusTable = map[string]string{
	"new":        StatusNew,
	"processing": StatusProcessing,
	"settled":    StatusPaid,
	"complete":   StatusPaid,
	"completed":  StatusPaid,
	"confirmed":  StatusPaid,
	"paid":       StatusPaid,
	"expired":    StatusExpired,
	"invalid":    StatusInvalid,
}

// NormalizeStatus maps a provider status onto the normalized vocabulary.
// Unknown statuses pass through unchanged.
func NormalizeStatus(raw string) string {
	if s, ok := statusTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return raw
}
