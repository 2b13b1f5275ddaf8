// Package results serializes normalized record sets to and from the
// flat JSON output file shared with the downstream consumers.
package results

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/otcheredev/pacs-study-toolkit/internal/models"
)

// ParseError reports a corrupt result stream, naming the offending
// element index (-1 when the enclosing document is malformed).
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed result document: %v", e.Err)
	}
	return fmt.Sprintf("malformed record at index %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Marshal serializes a result set as an indented JSON array, preserving
// record order. A nil set serializes as an empty array.
func Marshal(records models.ResultSet) ([]byte, error) {
	if records == nil {
		records = models.ResultSet{}
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result set: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal reconstructs a result set from data produced by Marshal.
// It is the exact inverse: same records, same order, same keys.
func Unmarshal(data []byte) (models.ResultSet, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	records := make(models.ResultSet, 0, len(raw))
	for i, element := range raw {
		var record models.Record
		if err := json.Unmarshal(element, &record); err != nil {
			return nil, &ParseError{Index: i, Err: err}
		}
		records = append(records, record)
	}

	return records, nil
}

// Save writes the result set to path, overwriting any existing file.
func Save(path string, records models.ResultSet) error {
	data, err := Marshal(records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results to %s: %w", path, err)
	}
	return nil
}

// Load reads a result set previously written by Save.
func Load(path string) (models.ResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results from %s: %w", path, err)
	}
	return Unmarshal(data)
}
