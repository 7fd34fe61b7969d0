package channels

import (
	"errors"
	"testing"

	"github.com/stewardhq/steward/internal/entity"
	"github.com/stewardhq/steward/pkg/models"
)

func TestParsePromptAction(t *testing.T) {
	cases := []struct {
		ref       string
		wantAgent string
		wantText  string
		wantErr   bool
	}{
		{ref: "prompt:agent:a1:check inbox", wantAgent: "agent:a1", wantText: "check inbox"},
		{ref: "prompt:a1:hello", wantAgent: "a1", wantText: "hello"},
		{ref: "prompt:agent:a1:fetch https://example.com", wantAgent: "agent:a1", wantText: "fetch https://example.com"},
		{ref: "prompt:agent:a1:", wantErr: true},
		{ref: "prompt::hello", wantErr: true},
		{ref: "prompt:justtext", wantErr: true},
		{ref: "webhook:agent:a1:hello", wantErr: true},
		{ref: "", wantErr: true},
	}
	for _, tc := range cases {
		agentID, text, err := parsePromptAction(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: want error, got (%q, %q)", tc.ref, agentID, text)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.ref, err)
			continue
		}
		if agentID != tc.wantAgent || text != tc.wantText {
			t.Errorf("%q = (%q, %q), want (%q, %q)", tc.ref, agentID, text, tc.wantAgent, tc.wantText)
		}
	}
}

func TestSchedulerChannelID(t *testing.T) {
	if got := SchedulerChannelID("agent:a1"); got != "sched-a1" {
		t.Errorf("branded id = %q, want sched-a1", got)
	}
	if got := SchedulerChannelID("a1"); got != "sched-a1" {
		t.Errorf("bare id = %q, want sched-a1", got)
	}
}

func TestMapTransportError(t *testing.T) {
	mailbox := MapTransportError("turn:t1", &entity.MailboxFullError{EntityType: "session", EntityKey: "s1"})
	var failure *models.TurnModelFailureError
	if !errors.As(mailbox, &failure) || failure.Reason != "session_entity_mailbox_full" {
		t.Errorf("mailbox mapping = %v", mailbox)
	}

	busy := MapTransportError("turn:t1", &entity.AlreadyProcessingError{EntityType: "session", EntityKey: "s1", MessageKey: "turn:t1"})
	if !errors.As(busy, &failure) || failure.Reason != "turn_already_processing" {
		t.Errorf("busy mapping = %v", busy)
	}

	// Domain errors pass through unchanged.
	domain := &models.TokenBudgetExceededError{AgentID: "agent:a1", Requested: 10, Remaining: 1}
	if got := MapTransportError("turn:t1", domain); got != error(domain) {
		t.Errorf("domain mapping = %v", got)
	}

	plain := MapTransportError("turn:t1", errors.New("boom"))
	if !errors.As(plain, &failure) || failure.Reason != "boom" {
		t.Errorf("plain mapping = %v", plain)
	}
}
