package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutorhub/internal/directory"
	"tutorhub/internal/helpqueue"
	"tutorhub/internal/router"
	"tutorhub/pkg/types"
)

type nullStore struct{}

func (nullStore) GetProfile(context.Context, string) (*types.Profile, error) {
	return nil, types.ErrParticipantNotFound
}
func (nullStore) CreateProfile(context.Context, *types.Profile) error        { return nil }
func (nullStore) UpdateProfile(context.Context, *types.Profile) error        { return nil }
func (nullStore) ListProfiles(context.Context) ([]*types.Profile, error)     { return nil, nil }
func (nullStore) AppendMessage(context.Context, string, *types.Message) error { return nil }
func (nullStore) MessagesFor(context.Context, string) ([]*types.Message, error) {
	return nil, nil
}

type nullNotifier struct{}

func (nullNotifier) SendTutorOnlineAlert(context.Context, string, string, string) error {
	return nil
}

type recordingChannel struct {
	msgs chan *types.Message
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{msgs: make(chan *types.Message, 64)}
}

func (c *recordingChannel) SendMessage(msg *types.Message) error {
	c.msgs <- msg
	return nil
}
func (c *recordingChannel) SendBinary([]byte) error { return nil }
func (c *recordingChannel) Close() error            { return nil }

func newTestHub() *Hub {
	r := router.NewRouter(directory.NewDirectory(), helpqueue.NewQueue(), nullStore{}, nullNotifier{})
	return NewHub(r)
}

func TestStartStopLifecycle(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); !errors.Is(err, ErrHubAlreadyRunning) {
		t.Errorf("second Start should fail with ErrHubAlreadyRunning, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.Stop(); !errors.Is(err, ErrHubNotRunning) {
		t.Errorf("second Stop should fail with ErrHubNotRunning, got %v", err)
	}
}

func TestSubmitBeforeStart(t *testing.T) {
	h := newTestHub()
	err := h.Submit(&types.Message{Command: types.CommandNeedHelp, FromProfile: "S"})
	if !errors.Is(err, ErrHubNotRunning) {
		t.Errorf("expected ErrHubNotRunning, got %v", err)
	}
}

func TestConnectAndRouteThroughHub(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = h.Stop() }()

	tutorCh := newRecordingChannel()
	tutor := &directory.Participant{
		Profile: &types.Profile{Username: "T", Tutor: true},
		Channel: tutorCh,
	}
	if err := h.Connect(tutor); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	studentCh := newRecordingChannel()
	student := &directory.Participant{
		Profile: &types.Profile{Username: "S"},
		Channel: studentCh,
	}
	if err := h.Connect(student); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := h.Submit(&types.Message{Command: types.CommandNeedHelp, FromProfile: "S", Content: "math"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-tutorCh.msgs:
			if m.Command == types.CommandNeedHelp && m.Content == "S:math" {
				return
			}
		case <-deadline:
			t.Fatal("tutor never received the help summary broadcast")
		}
	}
}

func TestDuplicateConnectReportedSynchronously(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = h.Stop() }()

	first := &directory.Participant{
		Profile: &types.Profile{Username: "alice"},
		Channel: newRecordingChannel(),
	}
	if err := h.Connect(first); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}

	second := &directory.Participant{
		Profile: &types.Profile{Username: "alice"},
		Channel: newRecordingChannel(),
	}
	if err := h.Connect(second); !errors.Is(err, types.ErrDuplicateSession) {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
}
