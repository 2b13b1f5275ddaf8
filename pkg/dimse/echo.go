package dimse

import (
	"context"
	"fmt"
)

// CEcho performs a C-ECHO operation (DICOM ping)
func (a *Association) CEcho(ctx context.Context) error {
	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}

	pc, err := a.presentationContextFor(VerificationUID)
	if err != nil {
		return err
	}

	command := &Message{
		CommandField:        CEchoRQ,
		MessageID:           a.messageID(),
		CommandDataSetType:  noDataSet,
		AffectedSOPClassUID: VerificationUID,
	}

	if err := a.sendPData(pc.ID, encodeCommand(command), true); err != nil {
		return fmt.Errorf("failed to send C-ECHO request: %w", err)
	}

	rsp, _, err := a.receiveMessage()
	if err != nil {
		return fmt.Errorf("failed to receive C-ECHO response: %w", err)
	}

	if rsp.CommandField != CEchoRSP {
		return &PDUError{
			PDUType: pduPDataTF,
			Msg:     fmt.Sprintf("unexpected command: 0x%04x (expected C-ECHO-RSP)", rsp.CommandField),
		}
	}

	if rsp.Status != StatusSuccess {
		return &StatusError{Operation: "C-ECHO", Status: rsp.Status}
	}

	return nil
}
