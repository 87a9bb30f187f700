package agents

import (
	"errors"
	"time"
)

// ErrAgentsDisabled reports that the agents were registered without a
// configured LLM provider and cannot answer.
var ErrAgentsDisabled = errors.New("agents: AI agents are not configured")

// Progress labels for how close a support reply is to the hidden solution.
// ERROR means the evaluation itself failed and must never be shown as a
// progress value; UNKNOWN means no solution text exists to compare against.
const (
	LabelEarly       = "EARLY"
	LabelProgressing = "PROGRESSING"
	LabelClose       = "CLOSE"
	LabelSolved      = "SOLVED"
	LabelError       = "ERROR"
	LabelUnknown     = "UNKNOWN"
)

// TicketAnalysis is the structured result of the analyze step. Complexity
// keeps the English enum values; all free text is Finnish.
type TicketAnalysis struct {
	ProblemCategory        string   `json:"problemCategory"`
	ProblemComplexity      string   `json:"problemComplexity"`
	EstimatedTimeToResolve string   `json:"estimatedTimeToResolve"`
	KeyInsights            []string `json:"keyInsights"`
	PossibleCauses         []string `json:"possibleCauses"`
	MissingInformation     []string `json:"missingInformation"`
	RecommendedApproach    string   `json:"recommendedApproach"`
	PotentialSolutions     []string `json:"potentialSolutions"`
}

// RelatedTicket is one similar-ticket hit surfaced to the support person.
type RelatedTicket struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// CommentEntry is one conversation turn as the agents see it.
type CommentEntry struct {
	AuthorName string    `json:"name"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
}

// AgentState is the per-request working state of the support agent. It is
// constructed at request start, populated step by step and discarded after
// the response; nothing in it is shared across requests.
type AgentState struct {
	UserQuery         string          `json:"userQuery"`
	TicketID          string          `json:"ticketId,omitempty"`
	TicketTitle       string          `json:"ticketTitle,omitempty"`
	TicketDescription string          `json:"ticketDescription,omitempty"`
	TicketCategory    string          `json:"ticketCategory,omitempty"`
	TicketPriority    string          `json:"ticketPriority,omitempty"`
	TicketStatus      string          `json:"ticketStatus,omitempty"`
	AnalysisResult    *TicketAnalysis `json:"analysisResult,omitempty"`
	RelevantTickets   []RelatedTicket `json:"relevantTickets,omitempty"`
	RelevantKnowledge []string        `json:"relevantKnowledge,omitempty"`
	SuggestedResponse string          `json:"suggestedResponse,omitempty"`
	NextSteps         []string        `json:"nextSteps,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// defaultAnalysis is substituted at exactly one point, when the response step
// runs without a usable analysis.
func defaultAnalysis() TicketAnalysis {
	return TicketAnalysis{
		ProblemCategory:        "Määrittämätön ongelma",
		ProblemComplexity:      "Moderate",
		EstimatedTimeToResolve: "Tuntematon",
		KeyInsights:            []string{"Analyysia ei saatavilla"},
		PossibleCauses:         []string{"Tietoja ei saatavilla"},
		MissingInformation:     []string{"Täydelliset tiketin tiedot"},
		RecommendedApproach:    "Tarkista tiketin tiedot",
		PotentialSolutions:     []string{"Kerää lisätietoa ongelmasta"},
	}
}

const fallbackResponseText = "Hei,\n\nkiitos tiketistäsi. Ehdin vilkaista asiaa, mutta tarvitsen vielä vähän lisätietoja ennen kuin pääsen kunnolla kiinni ongelmaan. Voisitko kertoa tarkemmin, missä tilanteessa vika ilmenee?\n\nTutkin sillä välin vastaavia tapauksia ja palaan asiaan mahdollisimman pian.\n\nTerveisin,\nTukitiimi"

func fallbackNextSteps() []string {
	return []string{
		"Pyydä lisätietoja ongelmasta",
		"Tarkista samankaltaiset tiketit",
		"Eskaloi erikoistuneelle tuelle tarvittaessa",
	}
}

// complexityForPriority maps a ticket priority to the training-conversation
// complexity bucket. Unknown priorities land in the middle.
func complexityForPriority(priority string) string {
	switch priority {
	case "LOW":
		return "simple"
	case "MEDIUM":
		return "moderate"
	case "HIGH", "CRITICAL":
		return "complex"
	default:
		return "moderate"
	}
}

// skillForComplexity maps complexity to the simulated requester's technical
// skill adjective used in the persona prompts.
func skillForComplexity(complexity string) string {
	switch complexity {
	case "simple":
		return "vähäinen"
	case "moderate":
		return "keskitasoinen"
	default:
		return "hyvä"
	}
}
