package dimse

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// mockConn implements net.Conn for testing
type mockConn struct {
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	closed   bool
}

func newMockConn() *mockConn {
	return &mockConn{
		readBuf:  new(bytes.Buffer),
		writeBuf: new(bytes.Buffer),
	}
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.closed {
		return 0, io.EOF
	}
	return m.readBuf.Read(b)
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	return m.writeBuf.Write(b)
}

func (m *mockConn) Close() error {
	m.closed = true
	return nil
}

func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

// newTestAssociation builds a connected association over a mock conn
// with an accepted study root query context.
func newTestAssociation(conn net.Conn) *Association {
	return &Association{
		conn:         conn,
		callingAET:   "TEST_SCU",
		calledAET:    "TEST_SCP",
		maxPDULength: 16384,
		timeout:      5 * time.Second,
		presentationCtxs: map[byte]*PresentationContext{
			1: {
				ID:             1,
				AbstractSyntax: StudyRootFindUID,
				TransferSyntax: ExplicitVRLittleEndian,
				Accepted:       true,
			},
			3: {
				ID:             3,
				AbstractSyntax: VerificationUID,
				TransferSyntax: ImplicitVRLittleEndian,
				Accepted:       true,
			},
		},
		nextMessageID: 1,
		isConnected:   true,
	}
}

// buildPDataPDU wraps data in a single-fragment P-DATA-TF PDU.
func buildPDataPDU(presContextID byte, isCommand, isLast bool, data []byte) []byte {
	control := byte(0)
	if isCommand {
		control |= 0x01
	}
	if isLast {
		control |= 0x02
	}

	pdv := make([]byte, 0, len(data)+6)
	pdv = binary.BigEndian.AppendUint32(pdv, uint32(len(data)+2))
	pdv = append(pdv, presContextID, control)
	pdv = append(pdv, data...)

	pduData := make([]byte, 6, 6+len(pdv))
	pduData[0] = pduPDataTF
	binary.BigEndian.PutUint32(pduData[2:6], uint32(len(pdv)))
	return append(pduData, pdv...)
}

// buildResponseCommand encodes a DIMSE response command set.
func buildResponseCommand(commandField, status uint16, hasDataset bool) []byte {
	dataSetType := noDataSet
	if hasDataset {
		dataSetType = dataSetPresent
	}

	var buf []byte
	buf = appendCommandElement(buf, 0x0100, uint16le(commandField))
	buf = appendCommandElement(buf, 0x0120, uint16le(1))
	buf = appendCommandElement(buf, 0x0800, uint16le(dataSetType))
	buf = appendCommandElement(buf, 0x0900, uint16le(status))
	return buf
}

func TestCEchoOverMockConn(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)

	conn.readBuf.Write(buildPDataPDU(3, true, true,
		buildResponseCommand(CEchoRSP, StatusSuccess, false)))

	if err := assoc.CEcho(context.Background()); err != nil {
		t.Fatalf("CEcho returned error: %v", err)
	}

	if conn.writeBuf.Len() == 0 {
		t.Fatal("expected C-ECHO request to be written to connection")
	}
}

func TestCFindPendingLoop(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)

	match := NewDataset()
	match.AddTag(tag.PatientID, "PAT001")
	match.AddTag(tag.InstitutionName, "Example Hospital")
	match.AddTag(tag.StudyDate, "20241006")

	conn.readBuf.Write(buildPDataPDU(1, true, true,
		buildResponseCommand(CFindRSP, StatusPending, true)))
	conn.readBuf.Write(buildPDataPDU(1, false, true,
		match.Encode(ExplicitVRLittleEndian)))
	conn.readBuf.Write(buildPDataPDU(1, true, true,
		buildResponseCommand(CFindRSP, StatusSuccess, false)))

	matches, err := assoc.CFind(context.Background(), StudyQuery{
		StudyDate:  "20241001-20241031",
		ReturnKeys: []tag.Tag{tag.PatientID, tag.InstitutionName, tag.StudyDate},
	})
	if err != nil {
		t.Fatalf("CFind returned error: %v", err)
	}

	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}

	if got := matches[0].GetString(tag.InstitutionName); got != "Example Hospital" {
		t.Errorf("InstitutionName = %q, want %q", got, "Example Hospital")
	}
}

func TestCFindFailureStatus(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)

	// 0xA700 = refused, out of resources
	conn.readBuf.Write(buildPDataPDU(1, true, true,
		buildResponseCommand(CFindRSP, 0xA700, false)))

	_, err := assoc.CFind(context.Background(), StudyQuery{StudyDate: "20240101-20240131"})
	if err == nil {
		t.Fatal("expected error for failure status")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Status != 0xA700 {
		t.Errorf("Status = 0x%04X, want 0xA700", statusErr.Status)
	}
}

func TestReceiveAbort(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)

	abort := make([]byte, 6+4)
	abort[0] = pduAbort
	binary.BigEndian.PutUint32(abort[2:6], 4)
	abort[8] = 0x02 // service-provider
	abort[9] = 0x01
	conn.readBuf.Write(abort)

	_, err := assoc.CFind(context.Background(), StudyQuery{StudyDate: "20240101-20240131"})

	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("expected AbortError, got %T: %v", err, err)
	}
	if !IsConnectionError(err) {
		t.Error("abort should classify as a connection error")
	}
	if assoc.IsConnected() {
		t.Error("association should be torn down after abort")
	}
}

func TestReceiveAssociateReject(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)

	reject := make([]byte, 6+4)
	reject[0] = pduAssociateRJ
	binary.BigEndian.PutUint32(reject[2:6], 4)
	reject[7] = 0x01 // rejected-permanent
	reject[8] = 0x01 // service-user
	reject[9] = 0x07 // called AE title not recognized
	conn.readBuf.Write(reject)

	err := assoc.receiveAssociateResponse()

	var assocErr *AssociationError
	if !errors.As(err, &assocErr) {
		t.Fatalf("expected AssociationError, got %T: %v", err, err)
	}
	if assocErr.Reason != 0x07 {
		t.Errorf("Reason = 0x%02X, want 0x07", assocErr.Reason)
	}
	if got := assocErr.Error(); got == "" {
		t.Error("expected descriptive error message")
	}
}

func TestParseAssociateAC(t *testing.T) {
	assoc := newTestAssociation(newMockConn())
	assoc.presentationCtxs = map[byte]*PresentationContext{
		1: {ID: 1, AbstractSyntax: StudyRootFindUID},
	}

	// Fixed fields: version, reserved, AE titles, reserved block
	payload := make([]byte, 68)
	binary.BigEndian.PutUint16(payload[0:2], 0x0001)

	// Presentation context result item accepting context 1 with
	// implicit VR little endian
	item := []byte{1, 0x00, 0x00, 0x00} // context ID, reserved, result=0, reserved
	ts := []byte(ImplicitVRLittleEndian)
	sub := []byte{0x40, 0x00}
	sub = binary.BigEndian.AppendUint16(sub, uint16(len(ts)))
	sub = append(sub, ts...)
	item = append(item, sub...)

	payload = append(payload, 0x21, 0x00)
	payload = binary.BigEndian.AppendUint16(payload, uint16(len(item)))
	payload = append(payload, item...)

	if err := assoc.parseAssociateAC(payload); err != nil {
		t.Fatalf("parseAssociateAC returned error: %v", err)
	}

	pc, err := assoc.presentationContextFor(StudyRootFindUID)
	if err != nil {
		t.Fatalf("expected accepted presentation context: %v", err)
	}
	if pc.TransferSyntax != ImplicitVRLittleEndian {
		t.Errorf("TransferSyntax = %q, want implicit VR little endian", pc.TransferSyntax)
	}
}

func TestParseAssociateACPeerMaxPDU(t *testing.T) {
	buildPayload := func(peerMax uint32) []byte {
		payload := make([]byte, 68)
		binary.BigEndian.PutUint16(payload[0:2], 0x0001)

		maxLength := make([]byte, 4)
		binary.BigEndian.PutUint32(maxLength, peerMax)
		item := []byte{0x51, 0x00, 0x00, 0x04}
		item = append(item, maxLength...)

		payload = append(payload, 0x50, 0x00)
		payload = binary.BigEndian.AppendUint16(payload, uint16(len(item)))
		return append(payload, item...)
	}

	assoc := newTestAssociation(newMockConn())
	if err := assoc.parseAssociateAC(buildPayload(8192)); err != nil {
		t.Fatalf("parseAssociateAC returned error: %v", err)
	}
	if assoc.maxPDULength != 8192 {
		t.Errorf("maxPDULength = %d, want 8192", assoc.maxPDULength)
	}

	// A value too small to carry the PDU and PDV headers is ignored
	assoc = newTestAssociation(newMockConn())
	if err := assoc.parseAssociateAC(buildPayload(10)); err != nil {
		t.Fatalf("parseAssociateAC returned error: %v", err)
	}
	if assoc.maxPDULength != 16384 {
		t.Errorf("maxPDULength = %d, want 16384 (tiny advertisement ignored)", assoc.maxPDULength)
	}
}

func TestPDataFragmentation(t *testing.T) {
	conn := newMockConn()
	assoc := newTestAssociation(conn)
	assoc.maxPDULength = 32 // force fragmentation

	data := bytes.Repeat([]byte{0xAB}, 100)
	if err := assoc.sendPData(1, data, false); err != nil {
		t.Fatalf("sendPData returned error: %v", err)
	}

	// Walk the written PDUs and reassemble
	var reassembled []byte
	raw := conn.writeBuf.Bytes()
	offset := 0
	sawLast := false
	for offset < len(raw) {
		if raw[offset] != pduPDataTF {
			t.Fatalf("unexpected PDU type 0x%02x at offset %d", raw[offset], offset)
		}
		length := binary.BigEndian.Uint32(raw[offset+2 : offset+6])
		payload := raw[offset+6 : offset+6+int(length)]

		pdvLength := binary.BigEndian.Uint32(payload[0:4])
		control := payload[5]
		reassembled = append(reassembled, payload[6:4+pdvLength]...)
		if control&0x02 != 0 {
			sawLast = true
		}

		offset += 6 + int(length)
	}

	if !bytes.Equal(reassembled, data) {
		t.Errorf("reassembled %d bytes, want %d", len(reassembled), len(data))
	}
	if !sawLast {
		t.Error("expected final fragment to carry the last-fragment bit")
	}
}

func TestCommandRoundTrip(t *testing.T) {
	msg := &Message{
		CommandField:        CFindRQ,
		MessageID:           7,
		Priority:            0x0000,
		CommandDataSetType:  dataSetPresent,
		AffectedSOPClassUID: StudyRootFindUID,
	}

	decoded := decodeCommand(encodeCommand(msg))

	if decoded.CommandField != CFindRQ {
		t.Errorf("CommandField = 0x%04X, want 0x%04X", decoded.CommandField, CFindRQ)
	}
	if decoded.MessageID != 7 {
		t.Errorf("MessageID = %d, want 7", decoded.MessageID)
	}
	if decoded.AffectedSOPClassUID != StudyRootFindUID {
		t.Errorf("AffectedSOPClassUID = %q, want %q", decoded.AffectedSOPClassUID, StudyRootFindUID)
	}
	if !decoded.HasDataset() {
		t.Error("expected dataset-present command")
	}
}

func TestAssociateRequestShape(t *testing.T) {
	assoc := NewAssociation(AssociationConfig{
		Host:       "pacs.example.org",
		Port:       104,
		CallingAET: "TOOLKIT",
		CalledAET:  "ARCHIVE",
	})

	payload := assoc.buildAssociateRequest()

	if len(payload) < 68 {
		t.Fatalf("A-ASSOCIATE-RQ payload too short: %d bytes", len(payload))
	}

	called := string(payload[4:20])
	if called != string(padAET("ARCHIVE")) {
		t.Errorf("called AE = %q, want space-padded ARCHIVE", called)
	}
	calling := string(payload[20:36])
	if calling != string(padAET("TOOLKIT")) {
		t.Errorf("calling AE = %q, want space-padded TOOLKIT", calling)
	}

	if !bytes.Contains(payload, []byte(StudyRootFindUID)) {
		t.Error("expected study root FIND abstract syntax in request")
	}
	if !bytes.Contains(payload, []byte(applicationContextUID)) {
		t.Error("expected application context UID in request")
	}
}
