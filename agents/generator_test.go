package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const generatedTicketJSON = `{
	"title": "Sähköposti ei aukea",
	"description": "Kun yritän avata sähköpostin, ruutu jää valkoiseksi.",
	"device": "Työasema",
	"additionalInfo": "Alkoi eilen aamulla",
	"priority": "MEDIUM",
	"responseFormat": "TEKSTI"
}`

func TestGenerateTicketHappyPath(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{generatedTicketJSON}}
	agent, err := NewTicketGeneratorAgent(completer)
	if err != nil {
		t.Fatalf("NewTicketGeneratorAgent: %v", err)
	}

	ticket, err := agent.GenerateTicket(context.Background(), GenerateParams{
		Complexity:   "moderate",
		CategoryName: "Sähköposti",
		UserProfile:  "teacher",
	})
	if err != nil {
		t.Fatalf("GenerateTicket: %v", err)
	}
	if ticket.Title != "Sähköposti ei aukea" {
		t.Fatalf("title = %q", ticket.Title)
	}
	if ticket.Priority != "MEDIUM" {
		t.Fatalf("priority = %q", ticket.Priority)
	}
	if ticket.ResponseFormat != "TEKSTI" {
		t.Fatalf("responseFormat = %q", ticket.ResponseFormat)
	}
	if !strings.Contains(completer.prompts[0], "Sähköposti") || !strings.Contains(completer.prompts[0], "teacher") {
		t.Fatalf("prompt missing the generation params: %s", completer.prompts[0])
	}
}

func TestGenerateTicketDerivesPriorityFromComplexity(t *testing.T) {
	cases := []struct {
		complexity string
		want       string
	}{
		{"simple", "LOW"},
		{"moderate", "MEDIUM"},
		{"complex", "HIGH"},
		{"nonsense", "MEDIUM"},
		{"", "MEDIUM"},
	}
	for _, tc := range cases {
		withoutPriority := `{"title": "Otsikko", "description": "Kuvaus", "priority": "ylin"}`
		completer := &scriptedCompleter{replies: []string{withoutPriority}}
		agent, err := NewTicketGeneratorAgent(completer)
		if err != nil {
			t.Fatalf("NewTicketGeneratorAgent: %v", err)
		}

		ticket, err := agent.GenerateTicket(context.Background(), GenerateParams{Complexity: tc.complexity})
		if err != nil {
			t.Fatalf("GenerateTicket(%q): %v", tc.complexity, err)
		}
		if ticket.Priority != tc.want {
			t.Errorf("complexity %q: priority = %q, want %q", tc.complexity, ticket.Priority, tc.want)
		}
		if ticket.ResponseFormat != "TEKSTI" {
			t.Errorf("complexity %q: responseFormat = %q, want TEKSTI", tc.complexity, ticket.ResponseFormat)
		}
	}
}

func TestGenerateTicketRequestedFormatWins(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{generatedTicketJSON}}
	agent, _ := NewTicketGeneratorAgent(completer)

	ticket, err := agent.GenerateTicket(context.Background(), GenerateParams{ResponseFormat: "kuva"})
	if err != nil {
		t.Fatalf("GenerateTicket: %v", err)
	}
	if ticket.ResponseFormat != "KUVA" {
		t.Fatalf("responseFormat = %q, want KUVA", ticket.ResponseFormat)
	}
}

func TestGenerateTicketCapsDescriptionLength(t *testing.T) {
	long := strings.Repeat("ä", maxDescriptionRunes+500)
	completer := &scriptedCompleter{replies: []string{`{"title": "Otsikko", "description": "` + long + `"}`}}
	agent, _ := NewTicketGeneratorAgent(completer)

	ticket, err := agent.GenerateTicket(context.Background(), GenerateParams{})
	if err != nil {
		t.Fatalf("GenerateTicket: %v", err)
	}
	if got := len([]rune(ticket.Description)); got != maxDescriptionRunes {
		t.Fatalf("description length = %d runes, want %d", got, maxDescriptionRunes)
	}
}

func TestGenerateTicketRejectsMissingTitle(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{`{"title": " ", "description": "Kuvaus"}`}}
	agent, _ := NewTicketGeneratorAgent(completer)

	if _, err := agent.GenerateTicket(context.Background(), GenerateParams{}); err == nil {
		t.Fatalf("expected an error for a blank title")
	}
}

func TestGenerateSolutionFallsBack(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("provider down")}}
	agent, _ := NewTicketGeneratorAgent(completer)

	solution := agent.GenerateSolution(context.Background(), GeneratedTicket{Title: "x", Description: "y"})
	if solution != solutionFallback {
		t.Fatalf("solution = %q, want the fixed fallback", solution)
	}
}

func TestSimulateUserReplyUsesHeuristic(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"Jee, nyt toimii! Kiitos avusta."}}
	agent, _ := NewTicketGeneratorAgent(completer)

	ticket := ChatTicket{
		Title:       "Tulostusongelma",
		Description: "Tulostin ei tulosta",
		Priority:    "LOW",
		Solution:    "Avaa asetukset valitse verkkoasetukset poista välimuisti laitteelta kokonaan",
	}
	reply := agent.SimulateUserReply(context.Background(), ticket, nil,
		"Avaa asetukset valitse verkkoasetukset poista välimuisti laitteelta kokonaan")

	if reply.Evaluation != LabelSolved {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelSolved)
	}
	// One completion only: the evaluation came from the keyword heuristic.
	if len(completer.prompts) != 1 {
		t.Fatalf("expected a single LLM call, got %d", len(completer.prompts))
	}
	if reply.ResponseText != "Jee, nyt toimii! Kiitos avusta." {
		t.Fatalf("response = %q", reply.ResponseText)
	}
}

func TestSimulateUserReplyFallsBackOnError(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("provider down")}}
	agent, _ := NewTicketGeneratorAgent(completer)

	reply := agent.SimulateUserReply(context.Background(), ChatTicket{Solution: "jotain pitkää tekstiä tähän"}, nil, "kommentti")
	if reply.ResponseText != simulatedReplyFallback {
		t.Fatalf("response = %q, want the fixed fallback", reply.ResponseText)
	}
	if reply.Evaluation != LabelError {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelError)
	}
}
