// Package export renders stored submissions as downloadable files.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ruteri/form-intake-backend/interfaces"
)

// BrowserColumnPrefix is prepended to browser info keys in the header row.
const BrowserColumnPrefix = "browser_"

// SubmissionsCSV renders subs as CSV, newest first.
//
// Columns are Timestamp, IP Address, the sorted union of data keys and the
// sorted union of browser info keys. Every cell is quoted. Zero submissions
// produce an empty string rather than a header row.
func SubmissionsCSV(subs []interfaces.Submission) string {
	if len(subs) == 0 {
		return ""
	}

	rows := make([]interfaces.Submission, len(subs))
	copy(rows, subs)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})

	decoded := make([]map[string]any, len(rows))
	dataKeys := map[string]struct{}{}
	browserKeys := map[string]struct{}{}
	for i := range rows {
		data, err := rows[i].DataMap()
		if err != nil {
			data = map[string]any{}
		}
		decoded[i] = data
		for k := range data {
			dataKeys[k] = struct{}{}
		}
		for k := range rows[i].BrowserInfo {
			browserKeys[k] = struct{}{}
		}
	}
	sortedData := sortedKeys(dataKeys)
	sortedBrowser := sortedKeys(browserKeys)

	var b strings.Builder
	header := []string{"Timestamp", "IP Address"}
	header = append(header, sortedData...)
	for _, k := range sortedBrowser {
		header = append(header, BrowserColumnPrefix+k)
	}
	writeRow(&b, header)

	for i, sub := range rows {
		row := make([]string, 0, len(header))
		row = append(row, sub.CreatedAt.UTC().Format(time.RFC3339), sub.IPAddress)
		for _, k := range sortedData {
			row = append(row, cellValue(decoded[i][k]))
		}
		for _, k := range sortedBrowser {
			row = append(row, cellValue(sub.BrowserInfo[k]))
		}
		writeRow(&b, row)
	}
	return b.String()
}

// Filename returns the attachment name for an endpoint export.
func Filename(endpointName string, at time.Time) string {
	return fmt.Sprintf("%s-submissions-%s.csv", endpointName, at.UTC().Format("2006-01-02"))
}

func writeRow(b *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// cellValue renders strings as-is, null or absent as empty and anything
// else as JSON.
func cellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
