package templatefmt

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"stockwatch/internal/domain"
)

// timeLayout is the human-readable local-time layout used in alert messages.
const timeLayout = "2006-01-02 15:04:05"

// FuncMap returns shared alert message template helpers.
// Params: none.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"fmtTime":     FormatTime,
		"fmtDuration": FormatDuration,
	}
}

// ParseMessageTemplate parses one alert message template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseMessageTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// RenderMessage renders one alert through a compiled message template.
// Params: compiled template and alert payload.
// Returns: rendered message text or execution error.
func RenderMessage(compiled *template.Template, alert domain.Alert) (string, error) {
	var builder strings.Builder
	if err := compiled.Execute(&builder, alert); err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return builder.String(), nil
}

// FormatTime renders a timestamp in human-readable local time.
// Params: alert fire time.
// Returns: formatted local timestamp string.
func FormatTime(at time.Time) string {
	return at.Local().Format(timeLayout)
}

// FormatDuration renders duration in compact human form with one decimal precision.
// Params: duration value.
// Returns: formatted duration string.
func FormatDuration(duration time.Duration) string {
	if duration < 0 {
		duration = -duration
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}
