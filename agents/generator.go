package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"tiketti_back/llm"
)

const (
	defaultCategoryName = "Tekniset ongelmat"
	maxDescriptionRunes = 2000
)

const solutionFallback = "Ratkaisun luominen epäonnistui."

const simulatedReplyFallback = "Pahoittelut, en aivan ymmärtänyt ohjeita. Voisitko selittää vielä kerran?"

// GenerateParams steer a training-ticket generation round. Everything is
// optional; zero values fall back to a moderate ticket filed by a student.
type GenerateParams struct {
	Complexity     string
	CategoryName   string
	UserProfile    string
	ResponseFormat string
}

// GeneratedTicket is the model-written ticket draft. It carries no database
// identity; the caller decides whether and how to persist it.
type GeneratedTicket struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Device         string `json:"device"`
	AdditionalInfo string `json:"additionalInfo"`
	Priority       string `json:"priority"`
	ResponseFormat string `json:"responseFormat"`
}

// TicketGeneratorAgent writes realistic Finnish training tickets and their
// hidden reference solutions. It holds no database handle: generation is a
// pure LLM transformation and persistence belongs to the HTTP layer.
type TicketGeneratorAgent struct {
	completer llm.Completer
}

// NewTicketGeneratorAgent wires the generator.
func NewTicketGeneratorAgent(completer llm.Completer) (*TicketGeneratorAgent, error) {
	if completer == nil {
		return nil, errors.New("agents: completer is required")
	}
	return &TicketGeneratorAgent{completer: completer}, nil
}

// GenerateTicket asks the model for one training ticket matching the params.
// Invalid params degrade to defaults instead of failing; only the LLM call
// itself can raise an error.
func (g *TicketGeneratorAgent) GenerateTicket(ctx context.Context, params GenerateParams) (GeneratedTicket, error) {
	complexity := normalizeComplexity(params.Complexity)
	category := strings.TrimSpace(params.CategoryName)
	if category == "" {
		category = defaultCategoryName
	}
	profile := strings.TrimSpace(params.UserProfile)
	if profile == "" {
		profile = "student"
	}

	input := fmt.Sprintf("Vaikeustaso: %s\nKategoria: %s\nKäyttäjäprofiili: %s", complexity, category, profile)
	draft, err := llm.GenerateStructured[GeneratedTicket](ctx, g.completer, input, generatorInstructions(complexity, category, profile), llm.TierAdvanced)
	if err != nil {
		return GeneratedTicket{}, fmt.Errorf("agents: generate ticket: %w", err)
	}

	draft.Priority = priorityForComplexity(complexity, draft.Priority)
	draft.ResponseFormat = normalizeResponseFormat(params.ResponseFormat, draft.ResponseFormat)
	if runes := []rune(draft.Description); len(runes) > maxDescriptionRunes {
		draft.Description = string(runes[:maxDescriptionRunes])
	}
	if strings.TrimSpace(draft.Title) == "" || strings.TrimSpace(draft.Description) == "" {
		return GeneratedTicket{}, errors.New("agents: generated ticket is missing a title or description")
	}
	return draft, nil
}

// GenerateSolution writes the hidden reference solution for a generated
// ticket. Failure degrades to a fixed marker text so ticket creation never
// blocks on this step.
func (g *TicketGeneratorAgent) GenerateSolution(ctx context.Context, ticket GeneratedTicket) string {
	var b strings.Builder
	b.WriteString("Olet kokenut IT-tukihenkilö. Kirjoita selkeä, vaiheittainen ratkaisu seuraavaan tukipyyntöön.\n\n")
	fmt.Fprintf(&b, "Otsikko: %s\n", ticket.Title)
	fmt.Fprintf(&b, "Kuvaus: %s\n", ticket.Description)
	fmt.Fprintf(&b, "Laite: %s\n", orUnset(ticket.Device))
	fmt.Fprintf(&b, "Lisätiedot: %s\n\n", ticket.AdditionalInfo)
	b.WriteString("Kirjoita ratkaisu numeroituna vaihelistana suomeksi. Mainitse konkreettiset asetukset, valikot ja komennot, joita käyttäjän tulee käyttää.")

	solution, err := g.completer.Complete(ctx, b.String(), llm.TierAdvanced)
	if err != nil {
		log.Printf("agents: generate solution: %v", err)
		return solutionFallback
	}
	if strings.TrimSpace(solution) == "" {
		return solutionFallback
	}
	return solution
}

// SimulateUserReply produces the requester's next chat message without an
// evaluation LLM call: progress comes from the keyword heuristic, only the
// reply text costs a completion. Used where the cheaper path is preferred.
func (g *TicketGeneratorAgent) SimulateUserReply(ctx context.Context, ticket ChatTicket, history []CommentEntry, supportComment string) ChatReply {
	historyTexts := make([]string, 0, len(history))
	for _, entry := range history {
		historyTexts = append(historyTexts, entry.Content)
	}
	evaluation := EstimateSolutionProgress(supportComment, ticket.Solution, historyTexts)

	complexity := complexityForPriority(ticket.Priority)
	profile := ticket.UserProfile
	if strings.TrimSpace(profile) == "" {
		profile = "student"
	}

	var b strings.Builder
	b.WriteString("Olet tavallinen käyttäjä, joka on tehnyt IT-tukipyynnön.\n\n")
	fmt.Fprintf(&b, "Tiketin otsikko: %s\n", ticket.Title)
	fmt.Fprintf(&b, "Tiketin kuvaus: %s\n", ticket.Description)
	fmt.Fprintf(&b, "Roolisi: %s, jonka tekninen osaaminen on %s.\n\n", profile, skillForComplexity(complexity))
	fmt.Fprintf(&b, "Arvio tukihenkilön edistymisestä: %s\n\n", evaluation)
	b.WriteString("KESKUSTELUHISTORIA:\n")
	b.WriteString(historyJSON(history))
	b.WriteString("\n\nTUKIHENKILÖN UUSIN VIESTI:\n")
	b.WriteString(supportComment)
	b.WriteString("\n\nVastaa tukihenkilölle roolissasi pysyen, luontevalla puhekielisellä suomella. Jos edistymisarvio on SOLVED, kerro että ongelma ratkesi.")

	text, err := g.completer.Complete(ctx, b.String(), llm.TierStandard)
	if err != nil {
		log.Printf("agents: simulate user reply: %v", err)
		return ChatReply{ResponseText: simulatedReplyFallback, Evaluation: LabelError}
	}
	return ChatReply{ResponseText: text, Evaluation: evaluation}
}

func generatorInstructions(complexity, category, profile string) string {
	return fmt.Sprintf(`Olet harjoitustikettien generaattori IT-tuen koulutusjärjestelmään. Luo yksi realistinen suomenkielinen tukipyyntö, jonka on kirjoittanut %s.

Vaatimukset:
- Vaikeustaso: %s (simple = arkinen perusongelma, moderate = vaatii vianetsintää, complex = monimutkainen tai monen järjestelmän ongelma)
- Kategoria: %s
- Kirjoita kuvaus käyttäjän omin sanoin: käyttäjä ei tunne teknisiä termejä vaikeustason yläpuolelta
- Kuvauksen pituus korkeintaan muutama kappale

Palauta JSON-objekti kentillä:
{
  "title": "lyhyt otsikko",
  "description": "ongelman kuvaus käyttäjän näkökulmasta",
  "device": "laite tai ohjelmisto jota ongelma koskee",
  "additionalInfo": "lisätiedot, esim. milloin ongelma alkoi",
  "priority": "LOW, MEDIUM, HIGH tai CRITICAL",
  "responseFormat": "TEKSTI"
}`, profile, complexity, category)
}

func normalizeComplexity(complexity string) string {
	switch strings.ToLower(strings.TrimSpace(complexity)) {
	case "simple":
		return "simple"
	case "complex":
		return "complex"
	case "moderate", "":
		return "moderate"
	default:
		return "moderate"
	}
}

// priorityForComplexity keeps a model-chosen valid priority and otherwise
// derives one from the complexity bucket.
func priorityForComplexity(complexity, suggested string) string {
	switch strings.ToUpper(strings.TrimSpace(suggested)) {
	case "LOW", "MEDIUM", "HIGH", "CRITICAL":
		return strings.ToUpper(strings.TrimSpace(suggested))
	}
	switch complexity {
	case "simple":
		return "LOW"
	case "complex":
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

func normalizeResponseFormat(requested, suggested string) string {
	for _, candidate := range []string{requested, suggested} {
		switch strings.ToUpper(strings.TrimSpace(candidate)) {
		case "TEKSTI", "KUVA", "VIDEO":
			return strings.ToUpper(strings.TrimSpace(candidate))
		}
	}
	return "TEKSTI"
}
