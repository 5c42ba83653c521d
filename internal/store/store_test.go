package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tutorhub/internal/config"
	"tutorhub/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Timeout: 5 * time.Second,
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	profile := &types.Profile{Username: "alice", Tutor: false, PushToken: "tok1"}
	if err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	got, err := s.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Username != "alice" || got.Tutor || got.PushToken != "tok1" {
		t.Errorf("unexpected profile %+v", got)
	}
	if got.AssignedTutor != nil {
		t.Errorf("new profile should have no assigned tutor, got %q", *got.AssignedTutor)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProfile(context.Background(), "ghost")
	if !errors.Is(err, types.ErrParticipantNotFound) {
		t.Errorf("expected ErrParticipantNotFound, got %v", err)
	}
}

func TestUpdateProfileAssignedTutor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	profile := &types.Profile{Username: "bob"}
	if err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	// Assigned.
	profile.AssignTutor("T1")
	if err := s.UpdateProfile(ctx, profile); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, err := s.GetProfile(ctx, "bob")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.AssignedTutor == nil || *got.AssignedTutor != "T1" {
		t.Errorf("expected assigned tutor T1, got %v", got.AssignedTutor)
	}

	// Explicitly released is distinct from never assigned.
	profile.ReleaseTutor()
	if err := s.UpdateProfile(ctx, profile); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, err = s.GetProfile(ctx, "bob")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.AssignedTutor == nil || *got.AssignedTutor != "" {
		t.Errorf("expected released marker, got %v", got.AssignedTutor)
	}

	// Cleared back to unassigned.
	profile.ClearTutor()
	if err := s.UpdateProfile(ctx, profile); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	got, err = s.GetProfile(ctx, "bob")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.AssignedTutor != nil {
		t.Errorf("expected cleared assignment, got %q", *got.AssignedTutor)
	}
}

func TestListProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []*types.Profile{
		{Username: "carol", Tutor: true, PushToken: "tokC"},
		{Username: "alice", PushToken: "tokA"},
		{Username: "bob"},
	} {
		if err := s.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile %s: %v", p.Username, err)
		}
	}

	profiles, err := s.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(profiles))
	}
	// Ordered by username.
	want := []string{"alice", "bob", "carol"}
	for i, p := range profiles {
		if p.Username != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], p.Username)
		}
	}
	if !profiles[2].Tutor {
		t.Error("carol should be a tutor")
	}
}

func TestMessageHistoryOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateProfile(ctx, &types.Profile{Username: "alice"}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := &types.Message{
			Command:     types.CommandMessage,
			FromProfile: "bob",
			ToProfile:   "alice",
			Content:     fmt.Sprintf("msg-%d", i),
		}
		if err := s.AppendMessage(ctx, "alice", msg); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	history, err := s.MessagesFor(ctx, "alice")
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history))
	}
	for i, msg := range history {
		if want := fmt.Sprintf("msg-%d", i); msg.Content != want {
			t.Errorf("position %d: expected %s, got %s", i, want, msg.Content)
		}
		if msg.FromProfile != "bob" || msg.ToProfile != "alice" {
			t.Errorf("position %d: unexpected routing fields %+v", i, msg)
		}
	}
}

func TestMessagesForUnknownOwnerEmpty(t *testing.T) {
	s := newTestStore(t)

	history, err := s.MessagesFor(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d messages", len(history))
	}
}

func TestHistoryIsPerOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		if err := s.CreateProfile(ctx, &types.Profile{Username: name}); err != nil {
			t.Fatalf("CreateProfile %s: %v", name, err)
		}
	}

	msg := &types.Message{Command: types.CommandMessage, FromProfile: "bob", ToProfile: "alice", Content: "hi"}
	if err := s.AppendMessage(ctx, "alice", msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	bobHistory, err := s.MessagesFor(ctx, "bob")
	if err != nil {
		t.Fatalf("MessagesFor: %v", err)
	}
	if len(bobHistory) != 0 {
		t.Errorf("bob should have no history, got %d messages", len(bobHistory))
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWriteAfterCloseRejected(t *testing.T) {
	s := newTestStore(t)
	_ = s.Close()

	err := s.CreateProfile(context.Background(), &types.Profile{Username: "late"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSchemaReopenSkipsMigrations(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.DatabaseConfig{Path: filepath.Join(dir, "reopen.db"), Timeout: 5 * time.Second}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.CreateProfile(context.Background(), &types.Profile{Username: "alice"}); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.GetProfile(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetProfile after reopen: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("unexpected profile %+v", got)
	}
}
