package dimse

import (
	"errors"
	"fmt"
	"net"
)

// Common errors
var (
	ErrNotConnected          = errors.New("dimse: association not established")
	ErrNoPresentationContext = errors.New("dimse: no accepted presentation context")
)

// NetworkError represents a transport-level failure (unreachable host,
// timeout, broken connection).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AssociationError represents an A-ASSOCIATE-RJ received from the peer.
type AssociationError struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source byte
	Reason byte
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association rejected by %s: %s (result: %s)",
		e.sourceString(), e.reasonString(), e.resultString())
}

func (e *AssociationError) resultString() string {
	switch e.Result {
	case 1:
		return "rejected-permanent"
	case 2:
		return "rejected-transient"
	default:
		return "unknown"
	}
}

func (e *AssociationError) sourceString() string {
	switch e.Source {
	case 1:
		return "service-user"
	case 2:
		return "service-provider-acse"
	case 3:
		return "service-provider-presentation"
	default:
		return "unknown"
	}
}

func (e *AssociationError) reasonString() string {
	if e.Source == 1 {
		switch e.Reason {
		case 1:
			return "no-reason-given"
		case 2:
			return "application-context-not-supported"
		case 3:
			return "calling-ae-title-not-recognized"
		case 7:
			return "called-ae-title-not-recognized"
		}
	}
	if e.Source == 3 && e.Reason == 2 {
		return "local-limit-exceeded"
	}
	return "no-reason-given"
}

// AbortError represents an A-ABORT PDU received mid-operation.
type AbortError struct {
	Source byte
	Reason byte
}

func (e *AbortError) Error() string {
	source := "service-provider"
	if e.Source == 0 {
		source = "service-user"
	}
	return fmt.Sprintf("association aborted by %s (reason: 0x%02X)", source, e.Reason)
}

// PDUError represents a protocol negotiation failure or a malformed PDU.
type PDUError struct {
	PDUType byte
	Msg     string
}

func (e *PDUError) Error() string {
	return fmt.Sprintf("PDU error (type: 0x%02X): %s", e.PDUType, e.Msg)
}

// StatusError represents a DIMSE operation that completed with a
// failure status from the peer.
type StatusError struct {
	Operation string
	Status    uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed with status: 0x%04X", e.Operation, e.Status)
}

// IsConnectionError reports whether err is fatal for the association,
// as opposed to a recoverable per-request failure. A timed-out request
// is recoverable: the transport has been torn down, but the next
// operation re-establishes the association.
func IsConnectionError(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		var timeoutErr net.Error
		if errors.As(netErr.Err, &timeoutErr) && timeoutErr.Timeout() {
			return false
		}
		return true
	}

	var assocErr *AssociationError
	var abortErr *AbortError
	var pduErr *PDUError
	return errors.As(err, &assocErr) ||
		errors.As(err, &abortErr) ||
		errors.As(err, &pduErr)
}
