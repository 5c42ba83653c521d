package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tutorhub/internal/directory"
	"tutorhub/internal/helpqueue"
	"tutorhub/internal/router"
	"tutorhub/pkg/types"
)

type fakeChannel struct{}

func (fakeChannel) SendMessage(*types.Message) error { return nil }
func (fakeChannel) SendBinary([]byte) error          { return nil }
func (fakeChannel) Close() error                     { return nil }

type fakeStore struct {
	healthErr error
}

func (s *fakeStore) GetProfile(context.Context, string) (*types.Profile, error) {
	return nil, types.ErrParticipantNotFound
}
func (s *fakeStore) CreateProfile(context.Context, *types.Profile) error      { return nil }
func (s *fakeStore) UpdateProfile(context.Context, *types.Profile) error      { return nil }
func (s *fakeStore) ListProfiles(context.Context) ([]*types.Profile, error)   { return nil, nil }
func (s *fakeStore) AppendMessage(context.Context, string, *types.Message) error {
	return nil
}
func (s *fakeStore) MessagesFor(context.Context, string) ([]*types.Message, error) {
	return nil, nil
}
func (s *fakeStore) HealthCheck(context.Context) error { return s.healthErr }

type fakeNotifier struct{}

func (fakeNotifier) SendTutorOnlineAlert(context.Context, string, string, string) error {
	return nil
}

func setup(t *testing.T) (*Server, *router.Router, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	r := router.NewRouter(directory.NewDirectory(), helpqueue.NewQueue(), store, fakeNotifier{})
	return NewServer(r, store), r, store
}

func connect(t *testing.T, r *router.Router, username string, tutor bool) {
	t.Helper()
	part := &directory.Participant{
		Profile: &types.Profile{Username: username, Tutor: tutor},
		Channel: &fakeChannel{},
	}
	if err := r.OnConnect(context.Background(), part); err != nil {
		t.Fatalf("OnConnect(%s): %v", username, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, r, _ := setup(t)
	connect(t, r, "alice", false)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Database != "healthy" {
		t.Errorf("unexpected health response %+v", resp)
	}
	if resp.Online != 1 {
		t.Errorf("expected 1 online participant, got %d", resp.Online)
	}
}

func TestHealthEndpointUnhealthyStore(t *testing.T) {
	server, _, store := setup(t)
	store.healthErr = errors.New("disk full")

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %q", resp.Status)
	}
}

func TestOnlineEndpoint(t *testing.T) {
	server, r, _ := setup(t)
	connect(t, r, "T", true)
	connect(t, r, "alice", false)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/online", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp onlineResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %+v", resp)
	}
	// Snapshot is sorted by username.
	if resp.Participants[0].Username != "T" || !resp.Participants[0].Tutor {
		t.Errorf("unexpected first participant %+v", resp.Participants[0])
	}
	if resp.Participants[1].Username != "alice" || resp.Participants[1].Tutor {
		t.Errorf("unexpected second participant %+v", resp.Participants[1])
	}
}

func TestBacklogEndpoint(t *testing.T) {
	server, r, _ := setup(t)
	connect(t, r, "alice", false)
	connect(t, r, "bob", false)

	for _, name := range []string{"alice", "bob"} {
		msg := &types.Message{Command: types.CommandNeedHelp, FromProfile: name, Content: "stuck"}
		if err := r.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleMessage(%s): %v", name, err)
		}
	}

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backlog", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp backlogResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Summary == "" {
		t.Error("expected non-empty backlog summary with two waiting students")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := setup(t)

	for _, path := range []string{"/health", "/api/online", "/api/backlog"} {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	server, _, _ := setup(t)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/online", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for preflight, got %d", rec.Code)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected wildcard origin, got %q", origin)
	}
}
