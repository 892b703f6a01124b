package qr

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Encode renders the scannable product code as a PNG.
func Encode(uniqueID string) ([]byte, error) {
	return EncodeSized(uniqueID, defaultSize)
}

// EncodeSized renders the code at the given pixel size.
func EncodeSized(uniqueID string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(uniqueID)
	if trimmed == "" {
		return nil, fmt.Errorf("unique id is required")
	}
	if size <= 0 {
		size = defaultSize
	}

	png, err := qrcode.Encode(trimmed, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding qr for %q: %w", trimmed, err)
	}
	return png, nil
}

// Key returns the storage key for a product's QR label.
func Key(uniqueID string) string {
	return fmt.Sprintf("qr/%s.png", strings.TrimSpace(uniqueID))
}
