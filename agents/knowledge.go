package agents

import (
	"context"
	"fmt"
	"strings"
)

// KnowledgeSource supplies support-relevant knowledge snippets for a problem
// category. The production implementation is a static lookup; the interface
// exists so a real knowledge base can replace it without touching the agent.
type KnowledgeSource interface {
	Snippets(ctx context.Context, problemCategory string, commentCount int) ([]string, error)
}

// staticKnowledgeSource keys generic IT-support facts by loose category
// matching and appends a note about the conversation length.
type staticKnowledgeSource struct{}

// NewStaticKnowledgeSource returns the built-in knowledge lookup.
func NewStaticKnowledgeSource() KnowledgeSource {
	return staticKnowledgeSource{}
}

var generalKnowledge = []string{
	"Käyttäjätunnukset lukittuvat automaattisesti viiden epäonnistuneen kirjautumisyrityksen jälkeen.",
	"Salasanan voi nollata itsepalveluna organisaation salasanaportaalissa.",
	"Tukihenkilöt voivat avata lukitun tunnuksen hallintapaneelin käyttäjähallinnasta.",
	"Etäyhteysongelmissa VPN-asiakasohjelman uudelleenkäynnistys korjaa suurimman osan tapauksista.",
}

var categoryKnowledge = map[string][]string{
	"verkko": {
		"Langattoman verkon ongelmissa kannattaa ensin unohtaa verkko ja liittyä siihen uudelleen.",
		"Vierailijaverkko ei salli tulostusta eikä verkkolevyjä; työt vaativat henkilökunnan verkon.",
	},
	"tulostus": {
		"Verkkotulostimet vaativat, että laite on samassa verkossa tulostimen kanssa.",
		"Tulostusjonon tyhjennys ratkaisee jumiutuneet tulostustyöt useimmissa tapauksissa.",
	},
	"sähköposti": {
		"Sähköpostin salasanat vanhenevat 90 päivän välein organisaation käytännön mukaisesti.",
		"Postilaatikon koon ylittyessä lähetys estyy ennen vastaanottoa.",
	},
}

func (staticKnowledgeSource) Snippets(ctx context.Context, problemCategory string, commentCount int) ([]string, error) {
	snippets := make([]string, 0, 6)
	snippets = append(snippets, generalKnowledge...)

	lowered := strings.ToLower(problemCategory)
	for key, items := range categoryKnowledge {
		if strings.Contains(lowered, key) {
			snippets = append(snippets, items...)
		}
	}

	if commentCount > 0 {
		snippets = append(snippets, fmt.Sprintf("Tiketillä on %d kommenttia, joissa keskustellaan ongelmasta.", commentCount))
	}
	return snippets, nil
}
