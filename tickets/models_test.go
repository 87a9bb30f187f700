package tickets

import "testing"

func TestValidPriority(t *testing.T) {
	for _, valid := range []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !ValidPriority(valid) {
			t.Errorf("ValidPriority(%q) = false", valid)
		}
	}
	for _, invalid := range []string{"", "low", "URGENT", " LOW"} {
		if ValidPriority(invalid) {
			t.Errorf("ValidPriority(%q) = true", invalid)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, valid := range []string{StatusOpen, StatusInProgress, StatusResolved, StatusClosed} {
		if !ValidStatus(valid) {
			t.Errorf("ValidStatus(%q) = false", valid)
		}
	}
	if ValidStatus("DONE") || ValidStatus("open") {
		t.Errorf("unknown statuses accepted")
	}
}

func TestValidResponseFormat(t *testing.T) {
	for _, valid := range []string{FormatText, FormatImage, FormatVideo} {
		if !ValidResponseFormat(valid) {
			t.Errorf("ValidResponseFormat(%q) = false", valid)
		}
	}
	if ValidResponseFormat("TEXT") {
		t.Errorf("English format name accepted")
	}
}

func TestBeforeCreateAssignsIDs(t *testing.T) {
	ticket := &Ticket{}
	if err := ticket.BeforeCreate(nil); err != nil {
		t.Fatalf("Ticket.BeforeCreate: %v", err)
	}
	if ticket.ID == "" {
		t.Fatalf("ticket id not assigned")
	}

	keep := &Ticket{ID: "existing-id"}
	if err := keep.BeforeCreate(nil); err != nil {
		t.Fatalf("Ticket.BeforeCreate: %v", err)
	}
	if keep.ID != "existing-id" {
		t.Fatalf("preset id overwritten: %q", keep.ID)
	}

	comment := &Comment{}
	if err := comment.BeforeCreate(nil); err != nil {
		t.Fatalf("Comment.BeforeCreate: %v", err)
	}
	if comment.ID == "" {
		t.Fatalf("comment id not assigned")
	}
}
