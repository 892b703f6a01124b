package enums

import "fmt"

// ScanDirection records whether a scan moved stock in or out.
type ScanDirection string

const (
	ScanDirectionIn  ScanDirection = "IN"
	ScanDirectionOut ScanDirection = "OUT"
)

var validScanDirections = []ScanDirection{
	ScanDirectionIn,
	ScanDirectionOut,
}

// IsValid reports whether the value matches the canonical scan direction enum.
func (s ScanDirection) IsValid() bool {
	for _, candidate := range validScanDirections {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScanDirection converts the raw string to ScanDirection.
func ParseScanDirection(value string) (ScanDirection, error) {
	for _, candidate := range validScanDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan direction %q", value)
}
