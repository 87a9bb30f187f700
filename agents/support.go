package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tiketti_back/llm"
	"tiketti_back/ticketai"
)

// SimilarityFinder is the slice of the ticket AI service the support agent
// needs. ticketai.Service satisfies it.
type SimilarityFinder interface {
	FindSimilarTicketsForTicket(ctx context.Context, ticket ticketai.TicketContent, limit int) ([]ticketai.Match, error)
}

// TicketInfo is the snapshot of a ticket handed to the support agent.
type TicketInfo struct {
	ID          string
	Title       string
	Description string
	Category    string
	Priority    string
	Status      string
	Comments    []CommentEntry
}

// SupportAgent runs the linear analysis pipeline that produces a suggested
// support reply: analyze, find similar tickets, retrieve knowledge, generate.
// Only the analyze step is load-bearing; the middle steps degrade to empty
// results and the response step has a fixed fallback.
type SupportAgent struct {
	completer llm.Completer
	finder    SimilarityFinder
	knowledge KnowledgeSource
}

// NewSupportAgent wires the pipeline. finder may be nil when the similarity
// store is unavailable; the similar-tickets step then yields an empty list.
func NewSupportAgent(completer llm.Completer, finder SimilarityFinder, knowledge KnowledgeSource) (*SupportAgent, error) {
	if completer == nil {
		return nil, errors.New("agents: completer is required")
	}
	if knowledge == nil {
		knowledge = NewStaticKnowledgeSource()
	}
	return &SupportAgent{completer: completer, finder: finder, knowledge: knowledge}, nil
}

// Run executes the pipeline for one request and returns the populated state.
// Errors are carried in the state, never raised: the HTTP layer serves the
// state with status 200 so the UI can render partial results.
func (a *SupportAgent) Run(ctx context.Context, query string, ticket TicketInfo) AgentState {
	title := ticket.Title
	if strings.TrimSpace(title) == "" {
		title = "No title provided"
	}
	description := ticket.Description
	if strings.TrimSpace(description) == "" {
		description = "No description provided"
	}

	state := AgentState{
		UserQuery:         query,
		TicketID:          ticket.ID,
		TicketTitle:       title,
		TicketDescription: description,
		TicketCategory:    ticket.Category,
		TicketPriority:    ticket.Priority,
		TicketStatus:      ticket.Status,
	}

	analysis, err := a.analyzeTicket(ctx, title, description, ticket)
	if err != nil {
		log.Printf("agents: analyze ticket: %v", err)
		state.Error = "Failed to analyze the ticket"
		return state
	}
	state.AnalysisResult = &analysis

	if similar, err := a.findSimilarTickets(ctx, title, description, ticket.Category); err != nil {
		log.Printf("agents: find similar tickets: %v", err)
	} else {
		state.RelevantTickets = similar
	}

	if snippets, err := a.knowledge.Snippets(ctx, analysis.ProblemCategory, len(ticket.Comments)); err != nil {
		log.Printf("agents: retrieve knowledge: %v", err)
	} else {
		state.RelevantKnowledge = snippets
	}

	responseText, nextSteps := a.generateResponse(ctx, title, description, ticket.Category, state.AnalysisResult, state.RelevantKnowledge, ticket.Comments)
	state.SuggestedResponse = responseText
	state.NextSteps = nextSteps

	return state
}

// analysisEnvelope accepts both the expected wrapped shape and the analysis
// object returned bare.
type analysisEnvelope struct {
	Analysis *TicketAnalysis `json:"analysis"`
	TicketAnalysis
}

func (a *SupportAgent) analyzeTicket(ctx context.Context, title, description string, ticket TicketInfo) (TicketAnalysis, error) {
	var prompt strings.Builder
	prompt.WriteString("Analysoi seuraava IT-tukipalvelun tiketti:\n\n")
	fmt.Fprintf(&prompt, "Otsikko: %s\n", title)
	fmt.Fprintf(&prompt, "Kuvaus: %s\n", description)
	fmt.Fprintf(&prompt, "Kategoria: %s\n", orUnset(ticket.Category))
	fmt.Fprintf(&prompt, "Tila: %s\n", orUnset(ticket.Status))
	fmt.Fprintf(&prompt, "Prioriteetti: %s\n", orUnset(ticket.Priority))
	if history := formatComments(ticket.Comments); history != "" {
		prompt.WriteString("\nKommenttihistoria:\n")
		prompt.WriteString(history)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nAnna kattava analyysi, joka sisältää ongelman kategorisoinnin, monimutkaisuuden arvioinnin, aika-arvion, keskeiset havainnot, mahdolliset syyt, puuttuvat tiedot ja suositellun lähestymistavan.")
	if len(ticket.Comments) > 0 {
		prompt.WriteString(" Ota huomioon kommenttihistoria analyysissasi.")
	}

	instructions := `Olet asiantunteva IT-tukianalyytikko. Analysoi tiketti ja palauta JSON-objekti, jossa on seuraavat ominaisuudet:
- problemCategory: tarkka tekninen kategoria ongelmalle (suomeksi)
- problemComplexity: yksi vaihtoehdoista "Simple", "Moderate" tai "Complex"
- estimatedTimeToResolve: ihmisluettava aika-arvio (suomeksi)
- keyInsights: taulukko 2-4 keskeisestä havainnosta (suomeksi)
- possibleCauses: taulukko 2-4 mahdollisesta syystä (suomeksi)
- missingInformation: taulukko lisätiedoista, joita tarvitaan ongelman ratkaisemiseksi (suomeksi)
- recommendedApproach: lyhyt strategia ongelman ratkaisemiseksi (suomeksi)
- potentialSolutions: taulukko 2-3 mahdollisesta ratkaisusta (suomeksi)`

	envelope, err := llm.GenerateStructured[analysisEnvelope](ctx, a.completer, prompt.String(), instructions, llm.TierAdvanced)
	if err != nil {
		return TicketAnalysis{}, err
	}

	if envelope.Analysis != nil {
		return *envelope.Analysis, nil
	}
	if strings.TrimSpace(envelope.ProblemCategory) != "" {
		return envelope.TicketAnalysis, nil
	}
	return TicketAnalysis{}, errors.New("agents: invalid analysis format received from LLM")
}

func (a *SupportAgent) findSimilarTickets(ctx context.Context, title, description, category string) ([]RelatedTicket, error) {
	if a.finder == nil {
		return nil, nil
	}

	matches, err := a.finder.FindSimilarTicketsForTicket(ctx, ticketai.TicketContent{
		Title:       title,
		Description: description,
		Category:    category,
	}, 0)
	if err != nil {
		return nil, err
	}

	related := make([]RelatedTicket, 0, len(matches))
	for _, match := range matches {
		related = append(related, RelatedTicket{
			ID:         match.TicketID,
			Title:      "Samankaltainen tiketti",
			Similarity: match.Similarity,
		})
	}
	return related, nil
}

type responsePayload struct {
	ResponseText            string   `json:"responseText"`
	NextStepsRecommendation []string `json:"nextStepsRecommendation"`
}

// generateResponse builds the casual Finnish reply suggestion. A missing
// analysis is replaced with the named default at this one substitution point;
// an LLM failure yields the fixed fallback instead of aborting.
func (a *SupportAgent) generateResponse(ctx context.Context, title, description, category string, analysis *TicketAnalysis, knowledge []string, comments []CommentEntry) (string, []string) {
	safe := defaultAnalysis()
	if analysis != nil {
		safe = *analysis
	}

	var prompt strings.Builder
	prompt.WriteString("Luo rento ja ystävällinen vastaus seuraavaan IT-tukipalvelun tikettiin.\n")
	prompt.WriteString("Vastauksen tulee olla IT-opiskelijan kirjoittama, joka opettelee tukipalvelun tarjoamista, ei virallisen yrityksen tukihenkilön. Käytä rentoa, auttavaa sävyä.\n\n")
	fmt.Fprintf(&prompt, "Tiketin otsikko: %s\n", title)
	fmt.Fprintf(&prompt, "Tiketin kuvaus: %s\n", description)
	fmt.Fprintf(&prompt, "Kategoria: %s\n\n", orUnset(category))
	prompt.WriteString("Analyysi:\n")
	fmt.Fprintf(&prompt, "- Ongelman tyyppi: %s\n", safe.ProblemCategory)
	fmt.Fprintf(&prompt, "- Monimutkaisuus: %s\n", complexityInFinnish(safe.ProblemComplexity))
	fmt.Fprintf(&prompt, "- Arvioitu ratkaisuaika: %s\n", safe.EstimatedTimeToResolve)
	fmt.Fprintf(&prompt, "- Keskeiset havainnot: %s\n", strings.Join(safe.KeyInsights, ", "))
	fmt.Fprintf(&prompt, "- Mahdolliset syyt: %s\n", strings.Join(safe.PossibleCauses, ", "))
	fmt.Fprintf(&prompt, "- Suositeltu lähestymistapa: %s\n\n", safe.RecommendedApproach)
	prompt.WriteString("Tietämys:\n")
	for _, item := range knowledge {
		fmt.Fprintf(&prompt, "- %s\n", item)
	}
	if history := formatComments(comments); history != "" {
		prompt.WriteString("\nKommenttihistoria:\n")
		prompt.WriteString(history)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nVastaa suoraan käyttäjälle häntä puhutellen, käyttäen rennompaa kieltä. Aloita tervehdyksellä ja esittelyllä ja kerro, että olet tiketin käsittelijä. Ole empaattinen ongelmaa kohtaan. Käytä persoonallista ja kaverimaista tyyliä sekä välillä puhekielen ilmauksia. Vältä liian virallisia fraaseja, pitkiä virkkeitä ja monimutkaista teknistä jargonia. Vastaa suomeksi.")
	if len(comments) > 0 {
		prompt.WriteString(" Huomioi kommenttihistoria vastauksessasi ja viittaa siihen tarvittaessa.")
	}

	instructions := `Luo JSON-vastaus, jossa on:
- responseText: täydellinen, ystävällinen vastaus tukipyyntöön suomeksi
- nextStepsRecommendation: 2-4 seuraavan vaiheen ehdotusta tukihenkilölle suomeksi`

	payload, err := llm.GenerateStructured[responsePayload](ctx, a.completer, prompt.String(), instructions, llm.TierStandard)
	if err != nil {
		log.Printf("agents: generate response: %v", err)
		return fallbackResponseText, fallbackNextSteps()
	}
	return payload.ResponseText, payload.NextStepsRecommendation
}

func formatComments(comments []CommentEntry) string {
	if len(comments) == 0 {
		return ""
	}
	lines := make([]string, 0, len(comments))
	for _, comment := range comments {
		lines = append(lines, fmt.Sprintf("- %s - %s: %s",
			comment.CreatedAt.Format("2.1.2006 15.04"), comment.AuthorName, comment.Content))
	}
	return strings.Join(lines, "\n")
}

func complexityInFinnish(complexity string) string {
	switch complexity {
	case "Simple":
		return "Helppo"
	case "Moderate":
		return "Keskivaikea"
	case "Complex":
		return "Monimutkainen"
	default:
		return complexity
	}
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Ei määritetty"
	}
	return value
}
