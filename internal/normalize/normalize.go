// Package normalize converts raw archive matches into flat records
// with a stable key set. Normalization is total: any input, including
// one missing every tag, yields a complete record.
package normalize

import (
	"regexp"
	"strings"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
)

// quotedValue extracts the data value from a decorated element string,
// e.g. "(0008,0020) StudyDate DA: '20241006'" -> "20241006".
var quotedValue = regexp.MustCompile(`'([^']*)'`)

// CleanValue strips the protocol decoration from a raw element string.
// Undecorated input is returned trimmed as-is so loading older result
// files keeps working.
func CleanValue(raw string) string {
	if m := quotedValue.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// Normalize converts one raw match into a record keyed by the canonical
// tag labels. Missing or blank institution names become the Unknown
// sentinel; other missing fields become empty strings.
func Normalize(match models.RawMatch) models.Record {
	record := make(models.Record, len(models.QueryTags))

	for _, t := range models.QueryTags {
		label := models.TagLabel(t)
		value := CleanValue(match[label])

		if label == models.LabelInstitutionName && value == "" {
			value = models.Unknown
		}

		record[label] = value
	}

	return record
}
