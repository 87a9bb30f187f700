package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"tiketti_back/llm"
)

const chatFallbackReply = "Valitettavasti kohtasin odottamattoman ongelman enkä voi vastata juuri nyt."

// ChatTicket is the ticket context the simulated requester works from.
// Solution stays hidden from the support person; the agent uses it only to
// judge progress and to stay in character.
type ChatTicket struct {
	ID             string
	Title          string
	Description    string
	Device         string
	Priority       string
	Category       string
	AdditionalInfo string
	UserProfile    string
	Solution       string
}

// ChatReply is the simulated requester's next message plus the progress
// evaluation that produced it.
type ChatReply struct {
	ResponseText string `json:"responseText"`
	Evaluation   string `json:"evaluation"`
}

// ChatAgent simulates the person who filed a training ticket. Each reply
// costs two LLM calls: one to evaluate how close the support person is to
// the hidden solution, one to answer in persona.
type ChatAgent struct {
	completer llm.Completer
}

// NewChatAgent wires the simulated requester.
func NewChatAgent(completer llm.Completer) (*ChatAgent, error) {
	if completer == nil {
		return nil, errors.New("agents: completer is required")
	}
	return &ChatAgent{completer: completer}, nil
}

// Reply produces the requester's next message. On any failure the reply is a
// fixed apology and the evaluation is ERROR, which callers must treat as
// "unknown, hide the progress bar", never as EARLY.
func (a *ChatAgent) Reply(ctx context.Context, ticket ChatTicket, history []CommentEntry, supportComment string) ChatReply {
	evaluation := a.EvaluateProgress(ctx, ticket, history, supportComment)
	if evaluation == LabelError {
		return ChatReply{ResponseText: chatFallbackReply, Evaluation: LabelError}
	}

	text, err := a.completer.Complete(ctx, a.replyPrompt(ticket, history, supportComment, evaluation), llm.TierStandard)
	if err != nil {
		log.Printf("agents: chat reply: %v", err)
		return ChatReply{ResponseText: chatFallbackReply, Evaluation: LabelError}
	}
	if strings.TrimSpace(text) == "" {
		text = "Pahoittelut, en osaa vastata tähän tällä hetkellä."
	}
	return ChatReply{ResponseText: text, Evaluation: evaluation}
}

// EvaluateProgress classifies the support person's latest comment against
// the hidden solution. Out-of-set model output normalizes to PROGRESSING;
// a failed call returns ERROR.
func (a *ChatAgent) EvaluateProgress(ctx context.Context, ticket ChatTicket, history []CommentEntry, supportComment string) string {
	solution := ticket.Solution
	if strings.TrimSpace(solution) == "" {
		solution = "Ratkaisua ei löytynyt."
	}

	raw, err := a.completer.Complete(ctx, progressPrompt(ticket, solution, history, supportComment), llm.TierStandard)
	if err != nil {
		log.Printf("agents: progress evaluation: %v", err)
		return LabelError
	}

	label := NormalizeProgressLabel(raw)
	if label != raw {
		log.Printf("agents: progress evaluation returned unexpected value %q, defaulting to %s", raw, label)
	}
	return label
}

func progressPrompt(ticket ChatTicket, solution string, history []CommentEntry, supportComment string) string {
	var b strings.Builder
	b.WriteString("Tehtäväsi on arvioida, kuinka lähellä tukihenkilö on ongelman oikeaa ratkaisua.\n\n")
	b.WriteString("ONGELMA JA KUVAUS:\n")
	fmt.Fprintf(&b, "Otsikko: %s\n", ticket.Title)
	fmt.Fprintf(&b, "Kuvaus: %s\n", ticket.Description)
	fmt.Fprintf(&b, "Laite: %s\n", orUnset(ticket.Device))
	fmt.Fprintf(&b, "Lisätiedot: %s\n\n", ticket.AdditionalInfo)
	b.WriteString("OIKEA RATKAISU ONGELMAAN:\n")
	b.WriteString(solution)
	b.WriteString("\n\nKESKUSTELUHISTORIA:\n")
	b.WriteString(historyJSON(history))
	b.WriteString("\n\nTUKIHENKILÖN VIIMEISIN KOMMENTTI:\n")
	b.WriteString(supportComment)
	b.WriteString(`

OHJEET EDISTYMISEN ARVIOINTIIN:

1. EARLY (ei vielä lähellä ratkaisua):
   - Tukihenkilö ehdottaa yleisiä, yksinkertaisia toimenpiteitä tai pyytää vain lisätietoja
   - Ehdotukset eivät liity ratkaisun keskeisiin toimenpiteisiin

2. PROGRESSING (edistymässä kohti ratkaisua):
   - Tukihenkilö on tunnistanut ongelman oikean alueen
   - Ehdottaa toimia jotka liittyvät ratkaisuun, mutta eivät ole vielä täsmällisiä

3. CLOSE (lähellä ratkaisua):
   - Tukihenkilö on tunnistanut ongelman juurisyyn
   - Vastauksesta puuttuu vain yksityiskohtia tai vaiheiden tarkkuutta

4. SOLVED (ratkaisu löydetty):
   - Tukihenkilö osoittaa KESKEISEN TOIMENPITEEN, joka ratkaisee ongelman
   - Jos tukihenkilö on jo aiemmin antanut keskeiset ohjeet ja nyt vain kysyy "toimiiko?" tai "auttoiko tämä?", tilanne on SOLVED

TÄRKEÄÄ:
1. Ole ERITTÄIN JOUSTAVA arvioinnissasi; tukitilanne ei vaadi täsmälleen tiettyjä sanoja tai järjestystä.
2. Keskity RATKAISUN YTIMEEN: onko tukihenkilö tunnistanut oikean ongelman ja ehdottaa järkeviä toimenpiteitä?
3. Valitse SOLVED heti kun tukihenkilö on maininnut keskeisen ratkaisutoimen, vaikka ohje olisi lyhyt tai epätäydellinen.
4. Huomioi koko keskusteluhistoria: jos aiemmissa viesteissä on annettu oikeita ohjeita ja nyt vain tarkistetaan tulosta, tilanne on SOLVED.

Vastaa VAIN yhdellä sanalla: EARLY, PROGRESSING, CLOSE tai SOLVED.`)
	return b.String()
}

func (a *ChatAgent) replyPrompt(ticket ChatTicket, history []CommentEntry, supportComment, evaluation string) string {
	complexity := complexityForPriority(ticket.Priority)
	skill := skillForComplexity(complexity)
	profile := ticket.UserProfile
	if strings.TrimSpace(profile) == "" {
		profile = "student"
	}

	var b strings.Builder
	b.WriteString("Olet tavallinen käyttäjä, joka on tehnyt IT-tukipyynnön ja keskustelee nyt tukihenkilön kanssa.\n\n")
	fmt.Fprintf(&b, "Tiketin otsikko: %s\n", ticket.Title)
	fmt.Fprintf(&b, "Tiketin kuvaus: %s\n", ticket.Description)
	fmt.Fprintf(&b, "Kategoria: %s\n", orUnset(ticket.Category))
	fmt.Fprintf(&b, "Laite: %s\n", orUnset(ticket.Device))
	fmt.Fprintf(&b, "Lisätiedot: %s\n\n", ticket.AdditionalInfo)
	fmt.Fprintf(&b, "Roolisi: %s, jonka tekninen osaaminen on %s.\n", profile, skill)
	fmt.Fprintf(&b, "Ongelman oikea ratkaisu (vain sinun tiedossasi, älä paljasta sitä suoraan): %s\n\n", orUnknown(ticket.Solution))
	fmt.Fprintf(&b, "Tukihenkilön edistyminen kohti ratkaisua: %s\n\n", evaluation)
	b.WriteString("KESKUSTELUHISTORIA:\n")
	b.WriteString(historyJSON(history))
	b.WriteString("\n\nTUKIHENKILÖN UUSIN VIESTI:\n")
	b.WriteString(supportComment)
	b.WriteString(`

Vastaa tukihenkilölle roolissasi pysyen. Jos ohjeet auttoivat, kerro mitä tapahtui kun kokeilit niitä. Jos edistyminen on SOLVED, kerro että ongelma ratkesi ja kiitä. Jos ohjeet olivat epäselviä tai eivät auttaneet, kysy tarkennusta osaamistasosi mukaisesti. Kirjoita luontevaa puhekielistä suomea äläkä koskaan paljasta tietäväsi oikeaa ratkaisua.`)
	return b.String()
}

func historyJSON(history []CommentEntry) string {
	if len(history) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(history)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func orUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Ei tietoa"
	}
	return value
}
