package record

import (
	"fmt"
	"strings"
	"time"
)

// Accepted ISO-8601 shapes. Fractional seconds are accepted after the
// seconds field by time.Parse even though the layouts omit them.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DateParseError reports a post date that none of the layouts accept.
type DateParseError struct {
	Value string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("unparsable date %q", e.Value)
}

// ParseDate parses an ISO-8601 timestamp. Values without an offset are UTC.
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, &DateParseError{Value: s}
}
