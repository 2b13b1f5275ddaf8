package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
)

// InstitutionCount is one institution's study count.
type InstitutionCount struct {
	Name  string
	Count int
}

// CountInstitutions groups records by cleaned institution name and
// counts occurrences. Blank names are grouped under the Unknown
// sentinel. Ordering is deterministic: count descending, name ascending
// on ties.
func CountInstitutions(records models.ResultSet) []InstitutionCount {
	counts := make(map[string]int)
	for _, record := range records {
		name := strings.TrimSpace(record[models.LabelInstitutionName])
		if name == "" {
			name = models.Unknown
		}
		counts[name]++
	}

	result := make([]InstitutionCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, InstitutionCount{Name: name, Count: count})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// WriteTSV writes one "name<TAB>count" line per institution.
func WriteTSV(w io.Writer, counts []InstitutionCount) error {
	for _, c := range counts {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", c.Name, c.Count); err != nil {
			return fmt.Errorf("failed to write institution counts: %w", err)
		}
	}
	return nil
}
