package dimse

import (
	"encoding/binary"
	"strings"
)

// DIMSE command field values
const (
	CFindRQ  uint16 = 0x0020
	CFindRSP uint16 = 0x8020
	CEchoRQ  uint16 = 0x0030
	CEchoRSP uint16 = 0x8030
)

// DIMSE status values
const (
	StatusSuccess        uint16 = 0x0000
	StatusCancel         uint16 = 0xFE00
	StatusPending        uint16 = 0xFF00
	StatusPendingWarning uint16 = 0xFF01
)

// Command Data Set Type values
const (
	dataSetPresent uint16 = 0x0000
	noDataSet      uint16 = 0x0101
)

// Message represents a DIMSE command set.
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	AffectedSOPClassUID       string
}

// HasDataset reports whether a dataset follows the command set.
func (m *Message) HasDataset() bool {
	return m.CommandDataSetType != noDataSet
}

// encodeCommand serializes a command set as Implicit VR Little Endian.
// Command sets always use Implicit VR regardless of the negotiated
// transfer syntax.
func encodeCommand(msg *Message) []byte {
	buf := make([]byte, 0, 128)

	// Command Group Length (0000,0000), value filled in at the end
	buf = appendCommandElement(buf, 0x0000, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		uid := []byte(msg.AffectedSOPClassUID)
		if len(uid)%2 == 1 {
			uid = append(uid, 0x00)
		}
		buf = appendCommandElement(buf, 0x0002, uid)
	}

	buf = appendCommandElement(buf, 0x0100, uint16le(msg.CommandField))
	buf = appendCommandElement(buf, 0x0110, uint16le(msg.MessageID))
	buf = appendCommandElement(buf, 0x0700, uint16le(msg.Priority))
	buf = appendCommandElement(buf, 0x0800, uint16le(msg.CommandDataSetType))

	groupLength := uint32(len(buf) - lengthPos - 4)
	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], groupLength)

	return buf
}

func appendCommandElement(buf []byte, element uint16, value []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, 0x0000)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func uint16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// decodeCommand parses a received command set.
func decodeCommand(data []byte) *Message {
	msg := &Message{CommandDataSetType: noDataSet}

	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])

		if offset+8+int(length) > len(data) {
			break
		}
		value := data[offset+8 : offset+8+int(length)]

		if group == 0x0000 {
			switch element {
			case 0x0002:
				msg.AffectedSOPClassUID = strings.TrimRight(string(value), "\x00 ")
			case 0x0100:
				if len(value) >= 2 {
					msg.CommandField = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0110:
				if len(value) >= 2 {
					msg.MessageID = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0120:
				if len(value) >= 2 {
					msg.MessageIDBeingRespondedTo = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0700:
				if len(value) >= 2 {
					msg.Priority = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0800:
				if len(value) >= 2 {
					msg.CommandDataSetType = binary.LittleEndian.Uint16(value[:2])
				}
			case 0x0900:
				if len(value) >= 2 {
					msg.Status = binary.LittleEndian.Uint16(value[:2])
				}
			}
		}

		offset += 8 + int(length)
	}

	return msg
}
