package detector

import (
	"testing"
)

func TestDetectFileLink(t *testing.T) {
	refs := Detect("watch this https://drive.google.com/file/d/1a2b3c4d5e6f7g8h9i0j/view?usp=sharing thanks")

	if len(refs) != 1 {
		t.Fatalf("Expected 1 reference, got %d", len(refs))
	}
	if refs[0].Type != ReferenceFile {
		t.Errorf("Expected type file, got %s", refs[0].Type)
	}
	if refs[0].ID != "1a2b3c4d5e6f7g8h9i0j" {
		t.Errorf("Expected id '1a2b3c4d5e6f7g8h9i0j', got '%s'", refs[0].ID)
	}
}

func TestDetectClassification(t *testing.T) {
	tests := []struct {
		name    string
		locator string
		typ     ReferenceType
		id      string
	}{
		{"open link", "https://drive.google.com/open?id=legacy_file_id_123", ReferenceFile, "legacy_file_id_123"},
		{"document", "https://docs.google.com/document/d/doc_id_456/edit", ReferenceDocument, "doc_id_456"},
		{"spreadsheet", "https://docs.google.com/spreadsheets/d/sheet_id_789", ReferenceSpreadsheet, "sheet_id_789"},
		{"presentation", "https://docs.google.com/presentation/d/slides_id_012", ReferencePresentation, "slides_id_012"},
		{"folder", "https://drive.google.com/drive/folders/folder_id_345", ReferenceFolder, "folder_id_345"},
		{"direct download", "https://drive.google.com/uc?id=direct_id_678", ReferenceFile, "direct_id_678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := Detect("see " + tt.locator + " for details")
			if len(refs) != 1 {
				t.Fatalf("Expected 1 reference, got %d", len(refs))
			}
			if refs[0].Type != tt.typ {
				t.Errorf("Expected type %s, got %s", tt.typ, refs[0].Type)
			}
			if refs[0].ID != tt.id {
				t.Errorf("Expected id '%s', got '%s'", tt.id, refs[0].ID)
			}
		})
	}
}

func TestDetectDeduplicatesAcrossLocatorForms(t *testing.T) {
	// Two URL shapes resolving to the same (type, id) collapse to one entry.
	text := "first https://drive.google.com/file/d/same_file_id_1/view " +
		"then https://drive.google.com/open?id=same_file_id_1 " +
		"and https://drive.google.com/uc?id=same_file_id_1"

	refs := Detect(text)
	if len(refs) != 1 {
		t.Fatalf("Expected 1 deduplicated reference, got %d", len(refs))
	}
	if refs[0].OriginalLocator != "https://drive.google.com/file/d/same_file_id_1/view" {
		t.Errorf("Expected first-seen locator preserved, got '%s'", refs[0].OriginalLocator)
	}
}

func TestDetectFirstSeenOrder(t *testing.T) {
	// A later-listed pattern type appearing earlier in the text must come
	// out first.
	text := "folder https://drive.google.com/drive/folders/folder_first_1 " +
		"doc https://docs.google.com/document/d/doc_second_2 " +
		"file https://drive.google.com/file/d/file_third_33/view"

	refs := Detect(text)
	if len(refs) != 3 {
		t.Fatalf("Expected 3 references, got %d", len(refs))
	}

	expected := []ReferenceType{ReferenceFolder, ReferenceDocument, ReferenceFile}
	for i, typ := range expected {
		if refs[i].Type != typ {
			t.Errorf("Position %d: expected type %s, got %s", i, typ, refs[i].Type)
		}
	}
}

func TestDetectSameIDDifferentTypes(t *testing.T) {
	// Same identifier under distinct types stays distinct.
	text := "https://docs.google.com/document/d/shared_id_123 " +
		"https://docs.google.com/spreadsheets/d/shared_id_123"

	refs := Detect(text)
	if len(refs) != 2 {
		t.Fatalf("Expected 2 references, got %d", len(refs))
	}
}

func TestDetectEmptyAndPlainText(t *testing.T) {
	if refs := Detect(""); refs != nil {
		t.Errorf("Expected nil for empty text, got %v", refs)
	}
	if refs := Detect("no links here, just words and http://example.com/page"); len(refs) != 0 {
		t.Errorf("Expected no references, got %v", refs)
	}
}

func TestDirectDownloadURL(t *testing.T) {
	file := Reference{Type: ReferenceFile, ID: "abc123def456"}
	want := "https://drive.google.com/uc?export=download&id=abc123def456"
	if got := file.DirectDownloadURL(); got != want {
		t.Errorf("Expected '%s', got '%s'", want, got)
	}

	folder := Reference{Type: ReferenceFolder, ID: "abc123def456"}
	if got := folder.DirectDownloadURL(); got != "" {
		t.Errorf("Expected empty URL for folder, got '%s'", got)
	}
}

func TestIsValidReferenceID(t *testing.T) {
	if !IsValidReferenceID("1a2b3c4d5e6f") {
		t.Error("Expected valid id to pass")
	}
	if IsValidReferenceID("short") {
		t.Error("Expected short id to fail")
	}
	if IsValidReferenceID("has spaces in it") {
		t.Error("Expected id with spaces to fail")
	}
}
