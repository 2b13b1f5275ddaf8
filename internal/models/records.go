package models

import (
	"fmt"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// QueryTags is the fixed attribute set requested from the archive.
// This set is closed: the output format and both downstream consumers
// key on exactly these tags.
var QueryTags = []tag.Tag{
	tag.PatientID,
	tag.InstitutionName,
	tag.StudyDate,
	tag.StudyTime,
	tag.Modality,
}

// Canonical labels for the query tags as they appear in the output file.
var (
	LabelPatientID       = TagLabel(tag.PatientID)       // (0010,0020)
	LabelInstitutionName = TagLabel(tag.InstitutionName) // (0008,0080)
	LabelStudyDate       = TagLabel(tag.StudyDate)       // (0008,0020)
	LabelStudyTime       = TagLabel(tag.StudyTime)       // (0008,0030)
	LabelModality        = TagLabel(tag.Modality)        // (0008,0060)
)

// Unknown is the sentinel emitted for missing or blank institution
// names. The institution counter groups on it.
const Unknown = "Unknown"

// TagLabel renders a tag in the canonical (gggg,eeee) form.
func TagLabel(t tag.Tag) string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// RawMatch is one archive-returned attribute set for a single study,
// keyed by canonical tag label. Values carry the protocol decoration
// ("(0008,0080) InstitutionName LO: 'St Mary'") as rendered by the
// dimse layer.
type RawMatch map[string]string

// Record is one study's metadata after normalization: canonical tag
// label to bare string value. Every record carries the full QueryTags
// key set.
type Record map[string]string

// ResultSet is an ordered sequence of normalized records, insertion
// order matching archive response order.
type ResultSet []Record
