package agents

import (
	"context"
	"errors"
	"testing"

	"tiketti_back/tickets"
)

func TestSimulatedReplySingleCompletion(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Jee, nyt toimii!"}}
	generator, err := NewTicketGeneratorAgent(completer)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	m := &Module{generator: generator}

	solution := "Avaa asetukset valitse verkkoasetukset poista välimuisti laitteelta kokonaan"
	profile := "student"
	ticket := &tickets.Ticket{
		Title:       "Verkko pätkii",
		Description: "Yhteys katkeilee jatkuvasti",
		Priority:    "MEDIUM",
		Solution:    &solution,
		UserProfile: &profile,
	}
	support := tickets.Comment{AuthorID: 5, Content: solution}

	reply, evaluation, err := m.SimulatedReply(context.Background(), ticket, nil, support)
	if err != nil {
		t.Fatalf("SimulatedReply: %v", err)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("completions = %d, want 1 (progress label must come from the heuristic)", len(completer.prompts))
	}
	if evaluation != LabelSolved {
		t.Fatalf("evaluation = %q, want %q from the heuristic", evaluation, LabelSolved)
	}
	if reply != "Jee, nyt toimii!" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSimulatedReplyEvaluationIgnoresModelOutput(t *testing.T) {
	// The model reply must never become the progress label: an off-topic
	// support comment stays EARLY no matter what the completion says.
	completer := &scriptedCompleter{replies: []string{"SOLVED"}}
	generator, err := NewTicketGeneratorAgent(completer)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	m := &Module{generator: generator}

	solution := "Avaa asetukset valitse verkkoasetukset poista välimuisti laitteelta kokonaan"
	ticket := &tickets.Ticket{Title: "Verkko pätkii", Description: "x", Priority: "LOW", Solution: &solution}
	support := tickets.Comment{AuthorID: 5, Content: "Oletko kokeillut sammuttaa koneen?"}

	_, evaluation, err := m.SimulatedReply(context.Background(), ticket, nil, support)
	if err != nil {
		t.Fatalf("SimulatedReply: %v", err)
	}
	if evaluation != LabelEarly {
		t.Fatalf("evaluation = %q, want %q", evaluation, LabelEarly)
	}
}

func TestSimulatedReplyDisabled(t *testing.T) {
	m := &Module{}
	if _, _, err := m.SimulatedReply(context.Background(), &tickets.Ticket{}, nil, tickets.Comment{}); !errors.Is(err, ErrAgentsDisabled) {
		t.Fatalf("err = %v, want ErrAgentsDisabled", err)
	}
}

func TestCommentEntriesRoles(t *testing.T) {
	ticket := &tickets.Ticket{CreatedByID: 1}
	entries := commentEntries(ticket, []tickets.Comment{
		{AuthorID: 1, Content: "apua"},
		{AuthorID: 9, Content: "kokeile tätä"},
	})
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Role != "user" || entries[0].AuthorName != "Käyttäjä" {
		t.Fatalf("creator entry = %+v", entries[0])
	}
	if entries[1].Role != "support" || entries[1].AuthorName != "Tukihenkilö" {
		t.Fatalf("support entry = %+v", entries[1])
	}
}
