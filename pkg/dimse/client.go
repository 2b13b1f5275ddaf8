package dimse

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Well-known UIDs used during association negotiation.
const (
	applicationContextUID = "1.2.840.10008.3.1.1.1"

	// StudyRootFindUID is the Study Root Query/Retrieve Information
	// Model - FIND SOP class.
	StudyRootFindUID = "1.2.840.10008.5.1.4.1.2.2.1"

	// VerificationUID is the Verification SOP class (C-ECHO).
	VerificationUID = "1.2.840.10008.1.1"

	implementationClassUID = "1.2.826.0.1.3680043.9.7433.1.1"
	implementationVersion  = "PACS_TOOLKIT_V1"
)

// minPDULength is the smallest peer-advertised maximum PDU length the
// client will honor. Smaller values would leave no room for the PDU and
// PDV headers during fragmentation.
const minPDULength = 1024

// PresentationContext holds the negotiated state for one proposed
// abstract syntax.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Accepted       bool
}

// Association represents a DICOM association
type Association struct {
	conn             net.Conn
	callingAET       string
	calledAET        string
	host             string
	port             int
	maxPDULength     uint32
	timeout          time.Duration
	presentationCtxs map[byte]*PresentationContext
	nextMessageID    uint16
	mu               sync.Mutex
	isConnected      bool
}

// AssociationConfig holds configuration for DICOM associations
type AssociationConfig struct {
	Host         string
	Port         int
	CallingAET   string
	CalledAET    string
	Timeout      time.Duration
	MaxPDULength uint32
}

// NewAssociation creates a new DICOM association
func NewAssociation(config AssociationConfig) *Association {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxPDULength < minPDULength {
		config.MaxPDULength = 16384 // 16KB default
	}

	return &Association{
		callingAET:       config.CallingAET,
		calledAET:        config.CalledAET,
		host:             config.Host,
		port:             config.Port,
		maxPDULength:     config.MaxPDULength,
		timeout:          config.Timeout,
		presentationCtxs: make(map[byte]*PresentationContext),
		nextMessageID:    1,
	}
}

// Connect establishes a DICOM association: one TCP connection plus the
// A-ASSOCIATE handshake negotiating the query presentation contexts.
func (a *Association) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isConnected {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", a.host, a.port)
	dialer := &net.Dialer{
		Timeout: a.timeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &NetworkError{Op: "connect to PACS", Err: err}
	}

	a.conn = conn
	a.isConnected = true

	if err := a.writePDU(pduAssociateRQ, a.buildAssociateRequest()); err != nil {
		a.teardown()
		return fmt.Errorf("failed to send associate request: %w", err)
	}

	if err := a.receiveAssociateResponse(); err != nil {
		a.teardown()
		return err
	}

	log.Info().
		Str("addr", addr).
		Str("calling_ae", a.callingAET).
		Str("called_ae", a.calledAET).
		Msg("DICOM association established")

	return nil
}

// Close releases the association and closes the connection. Safe to
// call on a failed or already-closed association.
func (a *Association) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isConnected {
		return nil
	}

	// Send A-RELEASE-RQ and wait briefly for the A-RELEASE-RP. Failures
	// here must not prevent the transport from closing.
	if err := a.writePDU(pduReleaseRQ, make([]byte, 4)); err != nil {
		log.Warn().Err(err).Msg("Failed to send release request")
	} else if pduType, _, err := a.readPDU(); err == nil && pduType != pduReleaseRP {
		log.Warn().Uint8("pdu_type", pduType).Msg("Unexpected PDU during release")
	}

	return a.teardown()
}

// abort tears down the transport after a protocol failure, forcing the
// next operation to re-establish the association. No release handshake
// is attempted because the stream state is unknown.
func (a *Association) abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.teardown()
}

// teardown closes the transport unconditionally. Caller holds a.mu.
func (a *Association) teardown() error {
	a.isConnected = false
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

// IsConnected checks if the association is still active
func (a *Association) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isConnected
}

// messageID returns the next DIMSE message ID.
func (a *Association) messageID() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextMessageID
	a.nextMessageID++
	if a.nextMessageID == 0 {
		a.nextMessageID = 1
	}
	return id
}

// presentationContextFor finds the accepted presentation context for an
// abstract syntax.
func (a *Association) presentationContextFor(abstractSyntax string) (*PresentationContext, error) {
	for _, pc := range a.presentationCtxs {
		if pc.AbstractSyntax == abstractSyntax && pc.Accepted {
			return pc, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoPresentationContext, abstractSyntax)
}

// buildAssociateRequest builds the A-ASSOCIATE-RQ payload.
func (a *Association) buildAssociateRequest() []byte {
	buf := make([]byte, 0, 512)

	// Protocol version
	buf = append(buf, 0x00, 0x01)
	// Reserved
	buf = append(buf, 0x00, 0x00)

	buf = append(buf, padAET(a.calledAET)...)
	buf = append(buf, padAET(a.callingAET)...)

	// Reserved (32 bytes)
	buf = append(buf, make([]byte, 32)...)

	// Application Context Item
	buf = appendItem(buf, 0x10, []byte(applicationContextUID))

	// Presentation contexts: study-level query and verification only.
	// Retrieval SOP classes are deliberately not proposed.
	buf = a.appendPresentationContext(buf, 1, StudyRootFindUID)
	buf = a.appendPresentationContext(buf, 3, VerificationUID)

	buf = a.appendUserInformation(buf)

	return buf
}

// appendPresentationContext appends one presentation context item
// proposing explicit and implicit VR little endian.
func (a *Association) appendPresentationContext(buf []byte, id byte, abstractSyntax string) []byte {
	item := make([]byte, 0, 128)
	item = append(item, id)
	item = append(item, 0x00, 0x00, 0x00) // Reserved

	item = appendItem(item, 0x30, []byte(abstractSyntax))
	// Order matters: the first transfer syntax is preferred.
	item = appendItem(item, 0x40, []byte(ExplicitVRLittleEndian))
	item = appendItem(item, 0x40, []byte(ImplicitVRLittleEndian))

	a.presentationCtxs[id] = &PresentationContext{
		ID:             id,
		AbstractSyntax: abstractSyntax,
	}

	return appendItem(buf, 0x20, item)
}

// appendUserInformation appends the user information item.
func (a *Association) appendUserInformation(buf []byte) []byte {
	item := make([]byte, 0, 128)

	maxLength := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLength, a.maxPDULength)
	item = appendItem(item, 0x51, maxLength)
	item = appendItem(item, 0x52, []byte(implementationClassUID))
	item = appendItem(item, 0x55, []byte(implementationVersion))

	return appendItem(buf, 0x50, item)
}

// appendItem appends a sub-item with the standard 4-byte item header.
func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

// receiveAssociateResponse receives the A-ASSOCIATE-AC (or -RJ) and
// records the accepted presentation contexts.
func (a *Association) receiveAssociateResponse() error {
	pduType, payload, err := a.readPDU()
	if err != nil {
		return err
	}

	switch pduType {
	case pduAssociateRJ:
		var result, source, reason byte
		if len(payload) >= 4 {
			result = payload[1]
			source = payload[2]
			reason = payload[3]
		}
		return &AssociationError{Result: result, Source: source, Reason: reason}
	case pduAbort:
		var source, reason byte
		if len(payload) >= 4 {
			source = payload[2]
			reason = payload[3]
		}
		return &AbortError{Source: source, Reason: reason}
	case pduAssociateAC:
		// continue below
	default:
		return &PDUError{PDUType: pduType, Msg: "unexpected PDU type (expected A-ASSOCIATE-AC)"}
	}

	if err := a.parseAssociateAC(payload); err != nil {
		return err
	}

	if _, err := a.presentationContextFor(StudyRootFindUID); err != nil {
		return &PDUError{PDUType: pduAssociateAC, Msg: "archive did not accept study root query context"}
	}

	return nil
}

// parseAssociateAC walks the variable items of an A-ASSOCIATE-AC.
func (a *Association) parseAssociateAC(data []byte) error {
	// Fixed fields: version, reserved, AE titles and reserved block.
	offset := 68
	if len(data) < offset {
		return &PDUError{PDUType: pduAssociateAC, Msg: "A-ASSOCIATE-AC too short"}
	}

	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		itemEnd := offset + 4 + int(itemLength)
		if itemEnd > len(data) {
			return &PDUError{PDUType: pduAssociateAC, Msg: "item length exceeds PDU"}
		}

		if itemType == 0x21 && itemLength >= 4 { // Presentation context result
			contextID := data[offset+4]
			result := data[offset+6]

			transferSyntax := ""
			subOffset := offset + 8
			for subOffset+4 <= itemEnd {
				subType := data[subOffset]
				subLength := binary.BigEndian.Uint16(data[subOffset+2 : subOffset+4])
				subEnd := subOffset + 4 + int(subLength)
				if subEnd > itemEnd {
					break
				}
				if subType == 0x40 && subLength > 0 {
					transferSyntax = strings.TrimRight(string(data[subOffset+4:subEnd]), "\x00 ")
				}
				subOffset = subEnd
			}

			if pc, ok := a.presentationCtxs[contextID]; ok {
				pc.Accepted = result == 0
				if pc.Accepted {
					pc.TransferSyntax = transferSyntax
					if pc.TransferSyntax == "" {
						pc.TransferSyntax = ImplicitVRLittleEndian
					}
				}
				log.Debug().
					Uint8("context_id", contextID).
					Str("abstract_syntax", pc.AbstractSyntax).
					Uint8("result", result).
					Str("transfer_syntax", pc.TransferSyntax).
					Msg("Presentation context negotiated")
			}
		}

		if itemType == 0x50 { // User information
			subOffset := offset + 4
			for subOffset+4 <= itemEnd {
				subType := data[subOffset]
				subLength := binary.BigEndian.Uint16(data[subOffset+2 : subOffset+4])
				subEnd := subOffset + 4 + int(subLength)
				if subEnd > itemEnd {
					break
				}
				if subType == 0x51 && subLength == 4 {
					// Implausibly small advertisements are ignored so
					// fragmentation keeps a usable payload size.
					peerMax := binary.BigEndian.Uint32(data[subOffset+4 : subEnd])
					if peerMax >= minPDULength && peerMax < a.maxPDULength {
						a.maxPDULength = peerMax
					}
				}
				subOffset = subEnd
			}
		}

		offset = itemEnd
	}

	return nil
}

// padAET pads AE Title to 16 bytes with spaces
func padAET(aet string) []byte {
	result := make([]byte, 16)
	copy(result, []byte(aet))
	for i := len(aet); i < 16; i++ {
		result[i] = ' '
	}
	return result
}
