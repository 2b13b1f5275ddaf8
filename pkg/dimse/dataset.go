package dimse

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// Transfer syntax UIDs negotiated for query operations.
const (
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// Element represents a single DICOM data element with a string value.
// C-FIND identifiers only carry text-representable attributes.
type Element struct {
	Tag   tag.Tag
	VR    string
	Value string
}

// String renders the element the way archives log it: tag, dictionary
// name, VR code and the quoted data value.
func (e *Element) String() string {
	return fmt.Sprintf("(%04x,%04x) %s %s: '%s'",
		e.Tag.Group, e.Tag.Element, tagName(e.Tag), e.VR, e.Value)
}

// Dataset is an ordered collection of DICOM elements.
type Dataset struct {
	elements []*Element
	index    map[tag.Tag]*Element
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{index: make(map[tag.Tag]*Element)}
}

// Add appends an element with an explicit VR, replacing any existing
// element with the same tag.
func (d *Dataset) Add(t tag.Tag, vr, value string) {
	if existing, ok := d.index[t]; ok {
		existing.VR = vr
		existing.Value = value
		return
	}
	e := &Element{Tag: t, VR: vr, Value: value}
	d.elements = append(d.elements, e)
	d.index[t] = e
}

// AddTag appends an element, resolving the VR from the tag dictionary.
func (d *Dataset) AddTag(t tag.Tag, value string) {
	d.Add(t, tagVR(t), value)
}

// Get returns the element for a tag.
func (d *Dataset) Get(t tag.Tag) (*Element, bool) {
	e, ok := d.index[t]
	return e, ok
}

// GetString returns the trimmed string value for a tag, or "" when the
// tag is absent.
func (d *Dataset) GetString(t tag.Tag) string {
	if e, ok := d.index[t]; ok {
		return strings.TrimSpace(e.Value)
	}
	return ""
}

// Elements returns the elements in insertion order.
func (d *Dataset) Elements() []*Element {
	return d.elements
}

// Len returns the number of elements.
func (d *Dataset) Len() int {
	return len(d.elements)
}

// Encode serializes the dataset using the given transfer syntax.
// Elements are emitted in ascending tag order as the standard requires.
func (d *Dataset) Encode(transferSyntax string) []byte {
	sorted := make([]*Element, len(d.elements))
	copy(sorted, d.elements)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Tag.Group != sorted[j].Tag.Group {
			return sorted[i].Tag.Group < sorted[j].Tag.Group
		}
		return sorted[i].Tag.Element < sorted[j].Tag.Element
	})

	explicit := transferSyntax != ImplicitVRLittleEndian

	var buf []byte
	for _, e := range sorted {
		value := []byte(e.Value)
		if len(value)%2 == 1 {
			pad := byte(' ')
			if e.VR == "UI" {
				pad = 0x00
			}
			value = append(value, pad)
		}

		buf = binary.LittleEndian.AppendUint16(buf, e.Tag.Group)
		buf = binary.LittleEndian.AppendUint16(buf, e.Tag.Element)

		if explicit {
			buf = append(buf, e.VR[0], e.VR[1])
			if isLongVR(e.VR) {
				buf = append(buf, 0x00, 0x00)
				buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
			} else {
				buf = binary.LittleEndian.AppendUint16(buf, uint16(len(value)))
			}
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
		}

		buf = append(buf, value...)
	}

	return buf
}

// ParseDataset decodes a dataset encoded with the given transfer syntax.
// Truncated trailing elements are dropped rather than failing the whole
// response.
func ParseDataset(data []byte, transferSyntax string) (*Dataset, error) {
	if transferSyntax == ImplicitVRLittleEndian {
		return parseImplicit(data)
	}
	return parseExplicit(data)
}

func parseExplicit(data []byte) (*Dataset, error) {
	ds := NewDataset()

	offset := 0
	for offset+8 <= len(data) {
		t := tag.Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		vr := string(data[offset+4 : offset+6])

		var length uint32
		var valueOffset int
		if isLongVR(vr) {
			if offset+12 > len(data) {
				break
			}
			length = binary.LittleEndian.Uint32(data[offset+8 : offset+12])
			valueOffset = offset + 12
		} else {
			length = uint32(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
			valueOffset = offset + 8
		}

		if valueOffset+int(length) > len(data) {
			break
		}

		ds.Add(t, vr, trimValue(data[valueOffset:valueOffset+int(length)]))
		offset = valueOffset + int(length)
	}

	return ds, nil
}

func parseImplicit(data []byte) (*Dataset, error) {
	ds := NewDataset()

	offset := 0
	for offset+8 <= len(data) {
		t := tag.Tag{
			Group:   binary.LittleEndian.Uint16(data[offset : offset+2]),
			Element: binary.LittleEndian.Uint16(data[offset+2 : offset+4]),
		}
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		valueOffset := offset + 8
		if valueOffset+int(length) > len(data) {
			break
		}

		ds.Add(t, tagVR(t), trimValue(data[valueOffset:valueOffset+int(length)]))
		offset = valueOffset + int(length)
	}

	return ds, nil
}

// trimValue strips null padding and surrounding whitespace.
func trimValue(data []byte) string {
	value := string(data)
	if idx := strings.IndexByte(value, 0); idx != -1 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func isLongVR(vr string) bool {
	switch vr {
	case "OB", "OD", "OF", "OL", "OV", "OW", "SQ", "UC", "UN", "UR", "UT", "SV", "UV":
		return true
	}
	return false
}

// tagVR resolves the VR from the tag dictionary, defaulting to UN.
func tagVR(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && len(info.VRs) > 0 {
		return info.VRs[0]
	}
	return "UN"
}

// tagName resolves the dictionary keyword for a tag.
func tagName(t tag.Tag) string {
	if info, err := tag.Find(t); err == nil && info.Keyword != "" {
		return info.Keyword
	}
	return "Unknown"
}
