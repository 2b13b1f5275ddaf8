package dimse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// queryRetrieveLevel (0008,0052) selects the level of the query model.
var queryRetrieveLevel = tag.Tag{Group: 0x0008, Element: 0x0052}

// StudyQuery describes one study-level C-FIND request. StudyDate may be
// a single date or a DICOM range ("YYYYMMDD-YYYYMMDD"); return keys are
// requested with empty values per the standard's universal matching.
type StudyQuery struct {
	StudyDate  string
	ReturnKeys []tag.Tag
}

// CFind issues a study-level C-FIND over the association and collects
// every match. The response stream is read until the archive reports a
// final status; a non-success final status is returned as a StatusError.
func (a *Association) CFind(ctx context.Context, query StudyQuery) ([]*Dataset, error) {
	if !a.IsConnected() {
		if err := a.Connect(ctx); err != nil {
			return nil, err
		}
	}

	pc, err := a.presentationContextFor(StudyRootFindUID)
	if err != nil {
		return nil, err
	}

	identifier := NewDataset()
	identifier.Add(queryRetrieveLevel, "CS", "STUDY")
	identifier.AddTag(tag.StudyDate, query.StudyDate)
	for _, t := range query.ReturnKeys {
		if _, ok := identifier.Get(t); !ok {
			identifier.AddTag(t, "")
		}
	}

	command := &Message{
		CommandField:        CFindRQ,
		MessageID:           a.messageID(),
		Priority:            0x0000, // Medium
		CommandDataSetType:  dataSetPresent,
		AffectedSOPClassUID: StudyRootFindUID,
	}

	if err := a.sendPData(pc.ID, encodeCommand(command), true); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to send C-FIND request: %w", err)
	}
	if err := a.sendPData(pc.ID, identifier.Encode(pc.TransferSyntax), false); err != nil {
		a.abort()
		return nil, fmt.Errorf("failed to send C-FIND identifier: %w", err)
	}

	start := time.Now()
	var matches []*Dataset

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rsp, data, err := a.receiveMessage()
		if err != nil {
			a.abort()
			return nil, fmt.Errorf("failed to receive C-FIND response: %w", err)
		}

		if rsp.CommandField != CFindRSP {
			a.abort()
			return nil, &PDUError{
				PDUType: pduPDataTF,
				Msg:     fmt.Sprintf("unexpected command: 0x%04x (expected C-FIND-RSP)", rsp.CommandField),
			}
		}

		switch rsp.Status {
		case StatusPending, StatusPendingWarning:
			if len(data) > 0 {
				match, err := ParseDataset(data, pc.TransferSyntax)
				if err != nil {
					log.Warn().Err(err).Msg("Failed to parse C-FIND match dataset")
					continue
				}
				matches = append(matches, match)
			}
		case StatusSuccess:
			log.Debug().
				Int("num_matches", len(matches)).
				Str("study_date", query.StudyDate).
				Dur("duration", time.Since(start)).
				Msg("C-FIND completed")
			return matches, nil
		default:
			return nil, &StatusError{Operation: "C-FIND", Status: rsp.Status}
		}
	}
}
