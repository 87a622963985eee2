package model

import (
	"regexp"
	"strings"
	"time"
)

// VendorStatus represents the administrative state of a vendor.
type VendorStatus string

const (
	VendorActive   VendorStatus = "active"
	VendorInactive VendorStatus = "inactive"
)

// Vendor is a price-reporting counterparty. Vendors are created by
// administrative import and are never mutated by the pipeline.
type Vendor struct {
	VendorID      string       `json:"vendor_id"`
	Name          string       `json:"name"`
	ContactHandle string       `json:"contact_handle"`
	Type          string       `json:"type,omitempty"` // e.g. "Importer", "Trader"
	Status        VendorStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at,omitempty"`
}

// Active reports whether the vendor may submit price observations.
func (v Vendor) Active() bool {
	return v.Status == VendorActive
}

var (
	handlePattern   = regexp.MustCompile(`^\+?92[-\s]?3\d{2}[-\s]?\d{7}$`)
	nonHandleCharRe = regexp.MustCompile(`[^\d+]`)
)

// NormalizeHandle canonicalizes a messaging handle to +92XXXXXXXXXX form.
// Local numbers ("03xx...") and bare country-code numbers ("92...") are
// promoted to the international form. Empty input stays empty.
func NormalizeHandle(handle string) string {
	if handle == "" {
		return ""
	}
	cleaned := nonHandleCharRe.ReplaceAllString(handle, "")
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	switch {
	case strings.HasPrefix(cleaned, "0"):
		return "+92" + cleaned[1:]
	case strings.HasPrefix(cleaned, "92"):
		return "+" + cleaned
	default:
		return "+92" + cleaned
	}
}

// ValidHandle reports whether the handle matches the expected mobile format
// after stripping separators.
func ValidHandle(handle string) bool {
	if handle == "" {
		return false
	}
	cleaned := nonHandleCharRe.ReplaceAllString(handle, "")
	return handlePattern.MatchString(cleaned)
}
