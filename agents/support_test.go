package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tiketti_back/llm"
	"tiketti_back/ticketai"
)

// scriptedCompleter replays canned replies in call order and records the
// prompts it saw.
type scriptedCompleter struct {
	replies []string
	errs    []error
	prompts []string
	tiers   []llm.Tier
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string, tier llm.Tier) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.tiers = append(s.tiers, tier)
	call := len(s.prompts) - 1
	var err error
	if call < len(s.errs) {
		err = s.errs[call]
	}
	if err != nil {
		return "", err
	}
	if call < len(s.replies) {
		return s.replies[call], nil
	}
	return "", errors.New("scriptedCompleter: no reply scripted")
}

type stubFinder struct {
	matches []ticketai.Match
	err     error
	calls   int
}

func (s *stubFinder) FindSimilarTicketsForTicket(ctx context.Context, ticket ticketai.TicketContent, limit int) ([]ticketai.Match, error) {
	s.calls++
	return s.matches, s.err
}

const analysisJSON = `{
	"analysis": {
		"problemCategory": "Verkko-ongelma",
		"problemComplexity": "Moderate",
		"estimatedTimeToResolve": "1-2 tuntia",
		"keyInsights": ["Yhteys katkeilee"],
		"possibleCauses": ["Reititin"],
		"missingInformation": ["Laitetiedot"],
		"recommendedApproach": "Tarkista reititin",
		"potentialSolutions": ["Käynnistä reititin uudelleen"]
	}
}`

const responseJSON = `{
	"responseText": "Moikka! Katsotaan tämä kuntoon.",
	"nextStepsRecommendation": ["Tarkista kaapelit", "Kokeile uudelleenkäynnistystä"]
}`

func TestSupportAgentRunHappyPath(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{analysisJSON, responseJSON}}
	finder := &stubFinder{matches: []ticketai.Match{{TicketID: "t-1", Similarity: 0.91}}}

	agent, err := NewSupportAgent(completer, finder, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "Miten etenen?", TicketInfo{
		ID:          "t-9",
		Title:       "Netti pätkii",
		Description: "Yhteys katkeaa muutaman minuutin välein",
		Category:    "Verkko",
	})

	if state.Error != "" {
		t.Fatalf("unexpected error state: %q", state.Error)
	}
	if state.AnalysisResult == nil || state.AnalysisResult.ProblemCategory != "Verkko-ongelma" {
		t.Fatalf("analysis not populated: %+v", state.AnalysisResult)
	}
	if len(state.RelevantTickets) != 1 || state.RelevantTickets[0].ID != "t-1" {
		t.Fatalf("relevant tickets = %+v", state.RelevantTickets)
	}
	if len(state.RelevantKnowledge) == 0 {
		t.Fatalf("expected knowledge snippets")
	}
	if state.SuggestedResponse != "Moikka! Katsotaan tämä kuntoon." {
		t.Fatalf("suggested response = %q", state.SuggestedResponse)
	}
	if len(state.NextSteps) != 2 {
		t.Fatalf("next steps = %v", state.NextSteps)
	}
	if completer.tiers[0] != llm.TierAdvanced {
		t.Fatalf("analysis must use the advanced tier, got %s", completer.tiers[0])
	}
	if completer.tiers[1] != llm.TierStandard {
		t.Fatalf("response must use the standard tier, got %s", completer.tiers[1])
	}
}

func TestSupportAgentAcceptsBareAnalysisObject(t *testing.T) {
	bare := `{"problemCategory": "Tulostus", "problemComplexity": "Simple"}`
	completer := &scriptedCompleter{replies: []string{bare, responseJSON}}

	agent, err := NewSupportAgent(completer, nil, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "apua", TicketInfo{Title: "Tulostin", Description: "Ei tulosta"})
	if state.Error != "" {
		t.Fatalf("unexpected error state: %q", state.Error)
	}
	if state.AnalysisResult == nil || state.AnalysisResult.ProblemCategory != "Tulostus" {
		t.Fatalf("bare analysis not accepted: %+v", state.AnalysisResult)
	}
}

func TestSupportAgentAnalysisFailureAbortsPipeline(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("provider down")}}
	finder := &stubFinder{}

	agent, err := NewSupportAgent(completer, finder, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "apua", TicketInfo{Title: "x", Description: "y"})
	if state.Error != "Failed to analyze the ticket" {
		t.Fatalf("error state = %q", state.Error)
	}
	if state.AnalysisResult != nil || state.SuggestedResponse != "" {
		t.Fatalf("pipeline continued past a failed analysis: %+v", state)
	}
	if finder.calls != 0 {
		t.Fatalf("similar-ticket lookup ran after a failed analysis")
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("expected a single LLM call, got %d", len(completer.prompts))
	}
}

func TestSupportAgentSimilarTicketFailureIsNonFatal(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{analysisJSON, responseJSON}}
	finder := &stubFinder{err: errors.New("store offline")}

	agent, err := NewSupportAgent(completer, finder, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "apua", TicketInfo{Title: "x", Description: "y"})
	if state.Error != "" {
		t.Fatalf("similarity failure must not abort the run: %q", state.Error)
	}
	if state.RelevantTickets != nil {
		t.Fatalf("relevant tickets = %+v, want none", state.RelevantTickets)
	}
	if state.SuggestedResponse == "" {
		t.Fatalf("response step skipped")
	}
}

func TestSupportAgentResponseFallback(t *testing.T) {
	completer := &scriptedCompleter{
		replies: []string{analysisJSON, ""},
		errs:    []error{nil, errors.New("timeout")},
	}

	agent, err := NewSupportAgent(completer, nil, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "apua", TicketInfo{Title: "x", Description: "y"})
	if state.Error != "" {
		t.Fatalf("response fallback must not set the error state: %q", state.Error)
	}
	if state.SuggestedResponse != fallbackResponseText {
		t.Fatalf("suggested response = %q, want the fixed fallback", state.SuggestedResponse)
	}
	if len(state.NextSteps) != len(fallbackNextSteps()) {
		t.Fatalf("next steps = %v, want fallback steps", state.NextSteps)
	}
}

func TestSupportAgentDefaultsBlankTitleAndDescription(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{analysisJSON, responseJSON}}

	agent, err := NewSupportAgent(completer, nil, nil)
	if err != nil {
		t.Fatalf("NewSupportAgent: %v", err)
	}

	state := agent.Run(context.Background(), "apua", TicketInfo{})
	if state.TicketTitle != "No title provided" || state.TicketDescription != "No description provided" {
		t.Fatalf("defaults not applied: %q / %q", state.TicketTitle, state.TicketDescription)
	}
	if !strings.Contains(completer.prompts[0], "No title provided") {
		t.Fatalf("analysis prompt missing the defaulted title")
	}
}
