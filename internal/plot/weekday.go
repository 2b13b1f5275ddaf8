// Package plot renders per-weekday study-time distribution images from
// a normalized result set.
package plot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
	"github.com/otcheredev/pacs-study-toolkit/internal/stats"
)

var weekdays = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// hourlyCounts is, per hour of day, the study counts observed on each
// distinct calendar date.
type hourlyCounts [24]map[string]int

// WriteWeekdayPlots renders one box-plot image per weekday with data,
// named "<Weekday>_boxplot.png", into outDir. Records with unparseable
// date or time values are skipped. Returns the paths written.
func WriteWeekdayPlots(records models.ResultSet, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	byWeekday := make(map[string]*hourlyCounts)
	skipped := 0

	for _, record := range records {
		studyTime, err := stats.ParseStudyDateTime(record[models.LabelStudyDate], record[models.LabelStudyTime])
		if err != nil {
			skipped++
			continue
		}

		weekday := studyTime.Weekday().String()
		counts, ok := byWeekday[weekday]
		if !ok {
			counts = &hourlyCounts{}
			byWeekday[weekday] = counts
		}

		hour := studyTime.Hour()
		if counts[hour] == nil {
			counts[hour] = make(map[string]int)
		}
		counts[hour][studyTime.Format("20060102")]++
	}

	if skipped > 0 {
		log.Warn().Int("num_skipped", skipped).Msg("Records without valid study date/time skipped")
	}

	var written []string
	for _, weekday := range weekdays {
		counts, ok := byWeekday[weekday]
		if !ok {
			continue
		}

		path := filepath.Join(outDir, weekday+"_boxplot.png")
		if err := renderWeekday(weekday, counts, path); err != nil {
			return written, err
		}
		written = append(written, path)

		log.Info().Str("weekday", weekday).Str("path", path).Msg("Saved weekday distribution plot")
	}

	return written, nil
}

// renderWeekday draws one box per hour of day, each box summarizing the
// per-date study counts for that hour.
func renderWeekday(weekday string, counts *hourlyCounts, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Study Distribution per Hour for %s", weekday)
	p.X.Label.Text = "Hour of Day"
	p.Y.Label.Text = "Number of Studies"
	p.X.Min = -0.5
	p.X.Max = 23.5

	for hour := 0; hour < 24; hour++ {
		perDate := counts[hour]
		if len(perDate) == 0 {
			continue
		}

		values := make(plotter.Values, 0, len(perDate))
		for _, count := range perDate {
			values = append(values, float64(count))
		}

		box, err := plotter.NewBoxPlot(vg.Points(12), float64(hour), values)
		if err != nil {
			return fmt.Errorf("failed to build box plot for hour %d: %w", hour, err)
		}
		p.Add(box)
	}

	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}

	return nil
}
