package transform

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// count is a non-negative integer field that tolerates null, floats, and quoted numbers.
// Negative values mean "hidden" on some platforms and decode as zero.
type count int64

func (c *count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			*c = 0
			return nil
		}
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid count %s", data)
	}
	*c = count(max(int64(f), 0))
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// stamp is a publication time given as a date string or unix seconds. The zero value means unknown.
type stamp struct {
	time.Time
}

func (s *stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '"' {
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s", data)
		}
		if secs > 0 {
			s.Time = time.Unix(secs, 0).UTC()
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	if secs, err := strconv.ParseInt(str, 10, 64); err == nil {
		if secs > 0 {
			s.Time = time.Unix(secs, 0).UTC()
		}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			s.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", str)
}

func (s stamp) ptr() *time.Time {
	if s.IsZero() {
		return nil
	}
	t := s.Time
	return &t
}

// flexID accepts string or numeric identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid id %s", data)
		}
		*f = flexID(n.String())
	}
	return nil
}

func firstNonEmpty[T ~string](values ...T) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}
