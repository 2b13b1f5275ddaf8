package dimse

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// PDU types
const (
	pduAssociateRQ byte = 0x01
	pduAssociateAC byte = 0x02
	pduAssociateRJ byte = 0x03
	pduPDataTF     byte = 0x04
	pduReleaseRQ   byte = 0x05
	pduReleaseRP   byte = 0x06
	pduAbort       byte = 0x07
)

// writePDU sends one PDU (header plus payload) as a single write.
func (a *Association) writePDU(pduType byte, payload []byte) error {
	if err := a.conn.SetWriteDeadline(time.Now().Add(a.timeout)); err != nil {
		return &NetworkError{Op: "set write deadline", Err: err}
	}

	pdu := make([]byte, 6, 6+len(payload))
	pdu[0] = pduType
	binary.BigEndian.PutUint32(pdu[2:6], uint32(len(payload)))
	pdu = append(pdu, payload...)

	if _, err := a.conn.Write(pdu); err != nil {
		return &NetworkError{Op: "write PDU", Err: err}
	}
	return nil
}

// readPDU reads one PDU header and payload.
func (a *Association) readPDU() (byte, []byte, error) {
	if err := a.conn.SetReadDeadline(time.Now().Add(a.timeout)); err != nil {
		return 0, nil, &NetworkError{Op: "set read deadline", Err: err}
	}

	header := make([]byte, 6)
	if _, err := io.ReadFull(a.conn, header); err != nil {
		return 0, nil, &NetworkError{Op: "read PDU header", Err: err}
	}

	length := binary.BigEndian.Uint32(header[2:6])
	payload := make([]byte, length)
	if _, err := io.ReadFull(a.conn, payload); err != nil {
		return 0, nil, &NetworkError{Op: "read PDU payload", Err: err}
	}

	return header[0], payload, nil
}

// sendPData fragments data into P-DATA-TF PDUs respecting the
// negotiated maximum PDU length.
func (a *Association) sendPData(presContextID byte, data []byte, isCommand bool) error {
	// PDU header (6) plus PDV header (6)
	maxFragment := int(a.maxPDULength) - 12

	offset := 0
	for {
		chunk := len(data) - offset
		last := true
		if chunk > maxFragment {
			chunk = maxFragment
			last = false
		}

		pdv := make([]byte, 0, chunk+6)
		pdv = binary.BigEndian.AppendUint32(pdv, uint32(chunk+2))
		pdv = append(pdv, presContextID)

		control := byte(0)
		if isCommand {
			control |= 0x01
		}
		if last {
			control |= 0x02
		}
		pdv = append(pdv, control)
		pdv = append(pdv, data[offset:offset+chunk]...)

		if err := a.writePDU(pduPDataTF, pdv); err != nil {
			return err
		}

		offset += chunk
		if offset >= len(data) {
			return nil
		}
	}
}

// receiveMessage reads P-DATA-TF PDUs until a complete DIMSE message
// (command set plus optional dataset) has been assembled.
func (a *Association) receiveMessage() (*Message, []byte, error) {
	var commandData, datasetData []byte
	var msg *Message
	commandComplete := false
	datasetComplete := false

	for {
		pduType, payload, err := a.readPDU()
		if err != nil {
			return nil, nil, err
		}

		switch pduType {
		case pduPDataTF:
			offset := 0
			for offset < len(payload) {
				if offset+6 > len(payload) {
					return nil, nil, &PDUError{PDUType: pduType, Msg: "truncated PDV"}
				}

				pdvLength := binary.BigEndian.Uint32(payload[offset : offset+4])
				end := offset + 4 + int(pdvLength)
				if end > len(payload) || pdvLength < 2 {
					return nil, nil, &PDUError{PDUType: pduType, Msg: "PDV length exceeds PDU payload"}
				}

				control := payload[offset+5]
				fragment := payload[offset+6 : end]
				isCommand := control&0x01 != 0
				isLast := control&0x02 != 0

				if isCommand {
					commandData = append(commandData, fragment...)
					if isLast {
						commandComplete = true
						msg = decodeCommand(commandData)
						if !msg.HasDataset() {
							datasetComplete = true
						}
					}
				} else {
					datasetData = append(datasetData, fragment...)
					if isLast {
						datasetComplete = true
					}
				}

				offset = end
			}
		case pduAbort:
			var source, reason byte
			if len(payload) >= 4 {
				source = payload[2]
				reason = payload[3]
			}
			return nil, nil, &AbortError{Source: source, Reason: reason}
		default:
			return nil, nil, &PDUError{
				PDUType: pduType,
				Msg:     fmt.Sprintf("unexpected PDU during data transfer: 0x%02x", pduType),
			}
		}

		if commandComplete && datasetComplete {
			return msg, datasetData, nil
		}
	}
}
