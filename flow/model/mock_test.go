package model

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMockChatModel_Sequence(t *testing.T) {
	m := &MockChatModel{Responses: []Output{{Text: "first"}, {Text: "second"}}}
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second", "second"} {
		out, err := m.Chat(ctx, []Message{{Role: RoleUser, Content: "q"}}, nil)
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if out.Text != want {
			t.Errorf("Chat text = %q, want %q", out.Text, want)
		}
	}
	if m.CallCount() != 4 {
		t.Errorf("CallCount = %d, want 4", m.CallCount())
	}

	m.Reset()
	out, _ := m.Chat(ctx, nil, nil)
	if out.Text != "first" {
		t.Errorf("after Reset expected first, got %q", out.Text)
	}
	if m.CallCount() != 1 {
		t.Errorf("Reset should clear history, got %d", m.CallCount())
	}
}

func TestMockChatModel_Err(t *testing.T) {
	wantErr := errors.New("scripted failure")
	m := &MockChatModel{Err: wantErr}

	_, err := m.Chat(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected scripted error, got %v", err)
	}
	// Failed calls are still recorded.
	if m.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", m.CallCount())
	}
}

func TestMockChatModel_ChatStream(t *testing.T) {
	m := &MockChatModel{Responses: []Output{{Text: "a b c"}}}

	var deltas []string
	out, err := m.ChatStream(context.Background(), nil, nil, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if out.Text != "a b c" {
		t.Errorf("unexpected final text %q", out.Text)
	}
	if len(deltas) != 3 {
		t.Fatalf("expected 3 word deltas, got %d: %v", len(deltas), deltas)
	}
	joined := ""
	for _, d := range deltas {
		joined += d
	}
	if joined != "a b c" {
		t.Errorf("deltas should reassemble the text, got %q", joined)
	}
}

func TestMockChatModel_RecordsTools(t *testing.T) {
	m := &MockChatModel{Responses: []Output{{Text: "x"}}}
	specs := []ToolSpec{{Name: "lookup", Description: "d"}}

	_, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, specs)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(m.Calls) != 1 || len(m.Calls[0].Tools) != 1 || m.Calls[0].Tools[0].Name != "lookup" {
		t.Errorf("tool specs not recorded: %+v", m.Calls)
	}
}

func TestError(t *testing.T) {
	cause := errors.New("underlying")
	e := &Error{Provider: "openai", Code: "rate_limit_error", Message: "slow down", Transient: true, Cause: cause}

	if !e.Retryable() {
		t.Error("transient error should be retryable")
	}
	if !errors.Is(e, cause) {
		t.Error("Unwrap should expose the cause")
	}
	msg := e.Error()
	if !strings.Contains(msg, "rate_limit_error") || !strings.Contains(msg, "openai") {
		t.Errorf("unexpected message %q", msg)
	}

	fatal := &Error{Provider: "openai", Code: "authentication_error", Message: "bad key"}
	if fatal.Retryable() {
		t.Error("non-transient error should not be retryable")
	}
}
