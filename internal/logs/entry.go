package logs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"shivuk/internal/logging"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	Fields    map[string]string
}

// Parse decodes a JSON log line. ok is false for lines in any other format.
func Parse(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Entry{}, false
	}

	entry := Entry{Fields: make(map[string]string, len(raw))}
	for key, value := range raw {
		switch key {
		case "ts", slog.TimeKey:
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			if s, ok := value.(string); ok {
				_ = entry.Level.UnmarshalText([]byte(s))
			}
		case slog.MessageKey:
			entry.Message, _ = value.(string)
		case logging.FieldComponent:
			entry.Component = fmt.Sprint(value)
		case slog.SourceKey:
		default:
			entry.Fields[key] = fieldString(value)
		}
	}
	return entry, true
}

func fieldString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(v); err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimSpace(buf.String())
	default:
		return fmt.Sprint(v)
	}
}

// Format renders the entry on one line in the console layout.
func (e Entry) Format() string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", e.Level.String())
	if e.Component != "" {
		fmt.Fprintf(&b, " [%s]", e.Component)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := e.Fields[key]
		if strings.ContainsAny(value, " \t\"=") {
			value = fmt.Sprintf("%q", value)
		}
		fmt.Fprintf(&b, " %s=%s", key, value)
	}
	return b.String()
}

// ParseLevel accepts debug, info, warn, or error in any case. Unknown values
// select debug so nothing is hidden.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelDebug
	}
	return level
}

// Filter selects entries by minimum level and component.
type Filter struct {
	MinLevel  slog.Level
	Component string
}

// Active reports whether the filter excludes anything.
func (f Filter) Active() bool {
	return f.MinLevel > slog.LevelDebug || f.Component != ""
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if e.Level < f.MinLevel {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	return true
}

// Render formats line for display. JSON lines are reformatted and filtered;
// other lines are returned unchanged unless the filter is active. show is
// false when the line should be skipped.
func Render(line string, filter Filter) (string, bool) {
	entry, ok := Parse(line)
	if !ok {
		return line, !filter.Active()
	}
	if !filter.Match(entry) {
		return "", false
	}
	return entry.Format(), true
}
