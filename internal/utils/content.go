package utils

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// sniffLength defines the maximum number of bytes inspected when classifying content.
const sniffLength = 8000

// UnknownMimeType is returned when no content is available to sniff.
const UnknownMimeType = "application/octet-stream"

// IsBinary reports whether the provided byte slice appears to contain binary data.
func IsBinary(data []byte) bool {
	sample := sniff(data)
	if len(sample) == 0 {
		return false
	}
	for _, byteValue := range sample {
		if byteValue == 0 {
			return true
		}
	}
	if len(sample) < len(data) {
		// The sample may end inside a multi-byte rune.
		for trimmed := 0; trimmed < utf8.UTFMax-1 && !utf8.Valid(sample); trimmed++ {
			sample = sample[:len(sample)-1]
		}
	}
	return !utf8.Valid(sample)
}

// DetectMimeType returns the MIME type of data using http.DetectContentType.
func DetectMimeType(data []byte) string {
	if len(data) == 0 {
		return UnknownMimeType
	}
	return http.DetectContentType(sniff(data))
}

func sniff(data []byte) []byte {
	if len(data) > sniffLength {
		return data[:sniffLength]
	}
	return data
}

// FormatFileSize converts a byte length into a human-readable lower-case unit string.
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		return "0b"
	}
	units := []string{"b", "kb", "mb", "gb", "tb", "pb"}
	value := float64(bytes)
	unitIndex := 0
	for value >= 1024 && unitIndex < len(units)-1 {
		value /= 1024
		unitIndex++
	}
	if unitIndex == 0 {
		return fmt.Sprintf("%db", bytes)
	}
	if value < 10 {
		formatted := fmt.Sprintf("%.1f", value)
		formatted = strings.TrimSuffix(formatted, ".0")
		return formatted + units[unitIndex]
	}
	return fmt.Sprintf("%.0f%s", value, units[unitIndex])
}

// refreshTimestampLayout keeps seconds so that refreshes within one minute
// remain distinguishable.
const refreshTimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders value in the local zone. The zero time renders empty.
func FormatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Local().Format(refreshTimestampLayout)
}
