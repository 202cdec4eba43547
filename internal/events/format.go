package events

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxValueLen bounds each rendered value; a2ui_message payloads are
// whole JSON documents.
const maxValueLen = 80

// Format renders e on one line as "HH:MM:SS.mmm source/kind k=v ...",
// with keys sorted and long values truncated.
func Format(e Event) string {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(e.Source)
	b.WriteByte('/')
	b.WriteString(e.Kind)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatValue(e.Data[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
		if strings.ContainsAny(s, " \t\n\"") {
			s = fmt.Sprintf("%q", s)
		}
	case fmt.Stringer:
		s = x.String()
	case int, int64, float64, bool:
		s = fmt.Sprint(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprintf("%v", x)
		} else {
			s = string(data)
		}
	}
	if len(s) > maxValueLen {
		s = s[:maxValueLen-3] + "..."
	}
	return s
}
