package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tiketti_back/llm"
)

func testChatTicket() ChatTicket {
	return ChatTicket{
		ID:          "t-1",
		Title:       "Tulostin ei toimi",
		Description: "Tulostin ei tulosta mitään",
		Priority:    "LOW",
		UserProfile: "teacher",
		Solution:    "Yhdistä tulostin verkkoon ja käynnistä se uudelleen",
	}
}

func TestChatAgentReplyUsesEvaluation(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"CLOSE", "Kokeilin tuota, hetki!"}}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	reply := agent.Reply(context.Background(), testChatTicket(), nil, "Tarkista verkkojohto ja käynnistä tulostin")
	if reply.Evaluation != LabelClose {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelClose)
	}
	if reply.ResponseText != "Kokeilin tuota, hetki!" {
		t.Fatalf("response = %q", reply.ResponseText)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("expected evaluation + reply calls, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[1], LabelClose) {
		t.Fatalf("reply prompt must carry the evaluation label")
	}
}

func TestChatAgentOutOfSetLabelBecomesProgressing(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"ehkä SOLVED?", "Selvä, kokeilen."}}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	reply := agent.Reply(context.Background(), testChatTicket(), nil, "kokeile jotain")
	if reply.Evaluation != LabelProgressing {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelProgressing)
	}
}

func TestChatAgentEvaluationFailureYieldsError(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("provider down")}}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	reply := agent.Reply(context.Background(), testChatTicket(), nil, "kokeile jotain")
	if reply.Evaluation != LabelError {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelError)
	}
	if reply.ResponseText != chatFallbackReply {
		t.Fatalf("response = %q, want the fixed fallback", reply.ResponseText)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("reply generation must be skipped after a failed evaluation, got %d calls", len(completer.prompts))
	}
}

func TestChatAgentReplyFailureYieldsError(t *testing.T) {
	completer := &scriptedCompleter{
		replies: []string{"SOLVED", ""},
		errs:    []error{nil, errors.New("timeout")},
	}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	reply := agent.Reply(context.Background(), testChatTicket(), nil, "se toimii nyt?")
	if reply.Evaluation != LabelError {
		t.Fatalf("evaluation = %q, want %q", reply.Evaluation, LabelError)
	}
	if reply.ResponseText != chatFallbackReply {
		t.Fatalf("response = %q, want the fixed fallback", reply.ResponseText)
	}
}

func TestChatAgentEvaluationPromptContainsSolutionAndHistory(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"EARLY", "ok"}}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	history := []CommentEntry{{
		AuthorName: "Tukihenkilö",
		Role:       "support",
		Content:    "Onko johto kiinni?",
		CreatedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	agent.Reply(context.Background(), testChatTicket(), history, "kokeile uudelleen")

	prompt := completer.prompts[0]
	if !strings.Contains(prompt, "Yhdistä tulostin verkkoon") {
		t.Fatalf("evaluation prompt missing the hidden solution")
	}
	if !strings.Contains(prompt, "Onko johto kiinni?") {
		t.Fatalf("evaluation prompt missing the conversation history")
	}
	if completer.tiers[0] != llm.TierStandard {
		t.Fatalf("evaluation tier = %s, want standard", completer.tiers[0])
	}
}

func TestChatAgentPersonaSkillFollowsPriority(t *testing.T) {
	completer := &scriptedCompleter{replies: []string{"PROGRESSING", "ok"}}
	agent, err := NewChatAgent(completer)
	if err != nil {
		t.Fatalf("NewChatAgent: %v", err)
	}

	ticket := testChatTicket()
	ticket.Priority = "CRITICAL"
	agent.Reply(context.Background(), ticket, nil, "kokeile jotain")

	if !strings.Contains(completer.prompts[1], "hyvä") {
		t.Fatalf("CRITICAL priority should give the skilled persona, prompt: %s", completer.prompts[1])
	}
}
