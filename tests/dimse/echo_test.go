package dimse_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/otcheredev/pacs-study-toolkit/pkg/dimse"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// These tests exercise a live archive and only run when PACS_TEST_ADDR
// points at one (e.g. a local Orthanc on localhost:4242).

func testConfig(t *testing.T) dimse.AssociationConfig {
	addr := os.Getenv("PACS_TEST_ADDR")
	if addr == "" {
		t.Skip("PACS_TEST_ADDR not set, skipping integration test")
	}

	return dimse.AssociationConfig{
		Host:       addr,
		Port:       4242,
		CallingAET: "PACS_TOOLKIT",
		CalledAET:  "ORTHANC",
		Timeout:    10 * time.Second,
	}
}

func TestCEcho(t *testing.T) {
	assoc := dimse.NewAssociation(testConfig(t))
	defer assoc.Close()

	ctx := context.Background()

	if err := assoc.CEcho(ctx); err != nil {
		t.Fatalf("C-ECHO failed: %v", err)
	}

	t.Log("C-ECHO successful!")
}

func TestCFindStudies(t *testing.T) {
	assoc := dimse.NewAssociation(testConfig(t))
	defer assoc.Close()

	ctx := context.Background()

	matches, err := assoc.CFind(ctx, dimse.StudyQuery{
		StudyDate:  "",
		ReturnKeys: []tag.Tag{tag.PatientID, tag.StudyDate, tag.Modality},
	})
	if err != nil {
		t.Fatalf("C-FIND failed: %v", err)
	}

	t.Logf("C-FIND returned %d studies", len(matches))
}
