// Package router is the command dispatcher at the heart of the service: it
// receives inbound messages tagged with a command, looks up participants in
// the directory, mutates the help queue and assignment state, and fans out
// outbound messages to the affected channels.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"tutorhub/internal/directory"
	"tutorhub/internal/helpqueue"
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Router owns the shared routing state. The directory and help queue form a
// single mutual-exclusion domain guarded by mu, because the assignment and
// backlog structures must never be observed half-updated. External I/O
// (store, notifier, channel sends) runs after the lock is released, in plan
// order, so slow collaborators never serialize routing.
type Router struct {
	mu       sync.Mutex
	dir      *directory.Directory
	queue    *helpqueue.Queue
	store    interfaces.ProfileStore
	notifier interfaces.Notifier
}

// NewRouter creates a router over the given state and collaborators.
func NewRouter(dir *directory.Directory, queue *helpqueue.Queue, store interfaces.ProfileStore, notifier interfaces.Notifier) *Router {
	return &Router{
		dir:      dir,
		queue:    queue,
		store:    store,
		notifier: notifier,
	}
}

// plan is the ordered sequence of deliveries and external effects a dispatch
// produced while holding the state lock. Steps run in order after unlock,
// which preserves per-channel delivery order end to end.
type plan struct {
	steps []func(ctx context.Context)
}

func (p *plan) add(step func(ctx context.Context)) {
	p.steps = append(p.steps, step)
}

func (p *plan) send(ch interfaces.Channel, msg *types.Message) {
	p.add(func(context.Context) {
		if err := ch.SendMessage(msg); err != nil {
			slog.Warn("message delivery failed", "command", msg.Command, "to", msg.ToProfile, "error", err)
		}
	})
}

func (p *plan) sendBinary(ch interfaces.Channel, data []byte, owner string) {
	p.add(func(context.Context) {
		if err := ch.SendBinary(data); err != nil {
			slog.Warn("binary delivery failed", "to", owner, "error", err)
		}
	})
}

func (p *plan) run(ctx context.Context) {
	for _, step := range p.steps {
		step(ctx)
	}
}

// HandleMessage dispatches an inbound message on its command tag. Dispatch is
// exclusive: one command runs exactly one handler, and unrecognized commands
// are no-ops. A lookup miss inside a handler skips only the dependent side
// effects; it never aborts the rest of the dispatch.
func (r *Router) HandleMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return nil
	}

	r.mu.Lock()
	p := &plan{}
	err := r.dispatch(msg, p)
	r.mu.Unlock()

	p.run(ctx)
	return err
}

// dispatch runs under the state lock and accumulates deliveries into p.
// Internal re-dispatch (a needHelp echo, a setTutor notice) recurses here so
// the whole causal sequence shares one lock acquisition and one plan.
func (r *Router) dispatch(msg *types.Message, p *plan) error {
	switch msg.Command {
	case types.CommandMessage:
		return r.sendDirect(msg, p)
	case types.CommandWebNoti:
		return r.updatePushToken(msg, p)
	case types.CommandFile:
		return r.sendFile(msg, p)
	case types.CommandTake:
		return r.takeStudent(msg, p)
	case types.CommandSetTutor, types.CommandConnectedUsers:
		return r.forward(msg, p)
	case types.CommandRelease:
		return r.releaseStudent(msg, p)
	case types.CommandNeedHelp:
		return r.needHelp(msg, p)
	default:
		slog.Debug("unrecognized command ignored", "command", msg.Command, "from", msg.FromProfile)
		return nil
	}
}

// sendDirect delivers a direct chat message to the recipient and echoes it to
// the sender, persisting it against each delivered participant's durable
// history. Targetless messages are no-ops.
func (r *Router) sendDirect(msg *types.Message, p *plan) error {
	if msg.ToProfile == "" {
		return nil
	}
	for _, part := range r.dir.AllOnline() {
		if part.Username() != msg.ToProfile && part.Username() != msg.FromProfile {
			continue
		}
		part.Messages = append(part.Messages, msg)
		owner := part.Username()
		p.add(func(ctx context.Context) {
			if err := r.store.AppendMessage(ctx, owner, msg); err != nil {
				slog.Error("message persistence failed", "owner", owner, "error", err)
			}
		})
		p.send(part.Channel, msg)
	}
	return nil
}

// updatePushToken records the sender's push token on their durable profile.
// No channel output.
func (r *Router) updatePushToken(msg *types.Message, p *plan) error {
	if part, ok := r.dir.LookupByName(msg.FromProfile); ok {
		part.Profile.PushToken = msg.Content
	}
	username, token := msg.FromProfile, msg.Content
	p.add(func(ctx context.Context) {
		profile, err := r.store.GetProfile(ctx, username)
		if err != nil {
			slog.Warn("push token update skipped", "username", username, "error", err)
			return
		}
		profile.PushToken = token
		if err := r.store.UpdateProfile(ctx, profile); err != nil {
			slog.Error("push token persistence failed", "username", username, "error", err)
		}
	})
	return nil
}

// sendFile delivers the sender's buffered binary payload plus a file metadata
// message to the recipient, then mirrors both back to the sender as a
// delivery confirmation with toProfile rewritten to the sender.
func (r *Router) sendFile(msg *types.Message, p *plan) error {
	if msg.ToProfile == "" {
		return nil
	}
	sender, ok := r.dir.LookupByName(msg.FromProfile)
	if !ok {
		slog.Warn("file transfer dropped, sender offline", "from", msg.FromProfile)
		return fmt.Errorf("file sender %s: %w", msg.FromProfile, types.ErrParticipantNotFound)
	}
	recipient, ok := r.dir.LookupByName(msg.ToProfile)
	if !ok {
		slog.Warn("file transfer dropped, recipient offline", "from", msg.FromProfile, "to", msg.ToProfile)
		return fmt.Errorf("file recipient %s: %w", msg.ToProfile, types.ErrRecipientOffline)
	}

	meta := &types.Message{
		Command:     types.CommandFile,
		FromProfile: msg.FromProfile,
		ToProfile:   msg.ToProfile,
		Content:     msg.Content,
	}
	confirmation := meta.Clone()
	confirmation.ToProfile = msg.FromProfile

	payload := sender.TakeFileBuffer()
	p.sendBinary(recipient.Channel, payload, recipient.Username())
	p.send(recipient.Channel, meta)
	p.sendBinary(sender.Channel, payload, sender.Username())
	p.send(sender.Channel, confirmation)
	return nil
}

// takeStudent claims a waiting student for the sending tutor: replays the
// student's backlog to the tutor, clears it, records the assignment, then
// refreshes the help summary and roster broadcasts and notifies the student.
// The target is the part of content before the first colon.
func (r *Router) takeStudent(msg *types.Message, p *plan) error {
	targetName := strings.SplitN(msg.Content, ":", 2)[0]
	target, ok := r.dir.LookupByName(targetName)
	if !ok {
		slog.Warn("take skipped, student offline", "tutor", msg.FromProfile, "student", targetName)
		return fmt.Errorf("take target %s: %w", targetName, types.ErrParticipantNotFound)
	}

	backlog := r.queue.TakeOver(targetName)
	if tutor, ok := r.dir.LookupByName(msg.FromProfile); ok {
		for _, m := range backlog {
			p.send(tutor.Channel, m)
		}
	} else {
		slog.Warn("backlog replay skipped, claiming tutor offline", "tutor", msg.FromProfile)
	}

	target.Profile.AssignTutor(msg.FromProfile)

	r.broadcastHelpSummary(p)
	r.broadcastRoster(p)
	return r.dispatch(types.NewSetTutorNotice(targetName, msg.FromProfile), p)
}

// releaseStudent unassigns the sending tutor from a student: the assignment
// becomes the explicit empty string, the change is persisted, the student is
// told their tutor is gone and re-enters the queue with a system message
// explaining why. Content carries the bare username, unlike take.
func (r *Router) releaseStudent(msg *types.Message, p *plan) error {
	target, ok := r.dir.LookupByName(msg.Content)
	if !ok {
		slog.Warn("release skipped, student offline", "tutor", msg.FromProfile, "student", msg.Content)
		return fmt.Errorf("release target %s: %w", msg.Content, types.ErrParticipantNotFound)
	}

	target.Profile.ReleaseTutor()
	snapshot := *target.Profile
	p.add(func(ctx context.Context) {
		if err := r.store.UpdateProfile(ctx, &snapshot); err != nil {
			slog.Error("release persistence failed", "username", snapshot.Username, "error", err)
		}
	})

	if err := r.dispatch(types.NewTutorRemovedNotice(target.Username()), p); err != nil {
		slog.Warn("tutor-removed notice dropped", "student", target.Username(), "error", err)
	}

	r.queue.Release(target.Username(), &types.Message{
		FromProfile: types.SystemSender,
		Content:     fmt.Sprintf("%s couldn't resolve issue", msg.FromProfile),
	})

	r.broadcastRoster(p)
	r.broadcastHelpSummary(p)
	return nil
}

// needHelp records a student's help request in their backlog and echoes it
// back as a delivery confirmation, then pushes the refreshed aggregate
// summary to every online tutor. System-authored needHelp messages (the
// router's own refreshes) only trigger the broadcast.
func (r *Router) needHelp(msg *types.Message, p *plan) error {
	var err error
	if !types.IsSystemSender(msg.FromProfile) {
		sender, ok := r.dir.LookupByName(msg.FromProfile)
		switch {
		case !ok:
			slog.Warn("help request dropped, sender offline", "from", msg.FromProfile)
			err = fmt.Errorf("help request sender %s: %w", msg.FromProfile, types.ErrParticipantNotFound)
		case !sender.IsTutor():
			// The backlog keeps the rewritten shape, so a later take replays
			// message-tagged frames addressed to the student.
			echo := msg.Clone()
			echo.ToProfile = msg.FromProfile
			echo.Command = types.CommandMessage
			r.queue.RecordUnhelped(sender.Username(), echo.Clone())
			if derr := r.dispatch(echo, p); derr != nil {
				slog.Warn("help request echo failed", "from", msg.FromProfile, "error", derr)
			}
		}
	}
	r.broadcastHelpSummary(p)
	return err
}

// forward delivers a message verbatim to its target's channel. Used by the
// internally dispatched setTutor and connectedUsers messages, but kept
// dispatchable for raw external input as well.
func (r *Router) forward(msg *types.Message, p *plan) error {
	target, ok := r.dir.LookupByName(msg.ToProfile)
	if !ok {
		return fmt.Errorf("forward target %s: %w", msg.ToProfile, types.ErrParticipantNotFound)
	}
	p.send(target.Channel, msg)
	return nil
}

// broadcastHelpSummary pushes the current aggregate "who needs help" state to
// every online tutor.
func (r *Router) broadcastHelpSummary(p *plan) {
	summary := types.NewHelpSummary(r.queue.Summary())
	for _, tutor := range r.dir.TutorsOnline() {
		p.send(tutor.Channel, summary)
	}
}

// broadcastRoster sends each online tutor the semicolon-joined list of online
// participants currently assigned to them. The list is sent even when empty
// so clients can clear a stale roster.
func (r *Router) broadcastRoster(p *plan) {
	for _, tutor := range r.dir.TutorsOnline() {
		var assigned []string
		for _, part := range r.dir.AllOnline() {
			if part.Profile.AssignedTutor != nil && *part.Profile.AssignedTutor == tutor.Username() {
				assigned = append(assigned, part.Username())
			}
		}
		sort.Strings(assigned)
		p.send(tutor.Channel, types.NewRosterMessage(tutor.Username(), strings.Join(assigned, ";")))
	}
}

// OnConnect registers a freshly connected participant, replays their durable
// history over the new channel, alerts push-token holders when a tutor comes
// online, and refreshes the help summary. Registration fails with
// ErrDuplicateSession when the username already has a live session; the
// caller owns closing the rejected channel.
func (r *Router) OnConnect(ctx context.Context, part *directory.Participant) error {
	r.mu.Lock()
	if err := r.dir.Add(part); err != nil {
		r.mu.Unlock()
		return err
	}

	p := &plan{}
	history := make([]*types.Message, len(part.Messages))
	copy(history, part.Messages)
	for _, m := range history {
		p.send(part.Channel, m)
	}

	if part.IsTutor() {
		tutorName := part.Username()
		p.add(func(ctx context.Context) {
			r.alertTutorOnline(ctx, tutorName)
		})
	}

	r.broadcastHelpSummary(p)
	r.mu.Unlock()

	p.run(ctx)
	slog.Info("participant connected", "username", part.Username(), "tutor", part.IsTutor())
	return nil
}

// alertTutorOnline notifies every stored profile holding a push token, except
// the tutor themselves, that a tutor came online. Best-effort all the way:
// failures are logged and the sweep continues.
func (r *Router) alertTutorOnline(ctx context.Context, tutorName string) {
	profiles, err := r.store.ListProfiles(ctx)
	if err != nil {
		slog.Error("tutor-online alert sweep failed", "tutor", tutorName, "error", err)
		return
	}
	for _, profile := range profiles {
		if profile.Username == tutorName || profile.PushToken == "" {
			continue
		}
		if err := r.notifier.SendTutorOnlineAlert(ctx, profile.PushToken, profile.Username, tutorName); err != nil {
			slog.Warn("tutor-online alert failed", "recipient", profile.Username, "error", err)
		}
	}
}

// OnDisconnect resolves the leaving participant by channel handle. Every
// online participant assigned to the leaver is unassigned, notified, and
// moved back into the help queue with their accumulated messages; the leaver
// is dropped from the queue and the directory; the summary and roster
// broadcasts refresh.
func (r *Router) OnDisconnect(ctx context.Context, ch interfaces.Channel) {
	r.mu.Lock()
	leaving, ok := r.dir.LookupByChannel(ch)
	if !ok {
		r.mu.Unlock()
		return
	}

	p := &plan{}
	for _, part := range r.dir.AllOnline() {
		if part.Profile.AssignedTutor == nil || *part.Profile.AssignedTutor != leaving.Username() {
			continue
		}
		part.Profile.ClearTutor()
		r.queue.Seed(part.Username(), part.Messages)
		p.send(part.Channel, types.NewTutorRemovedNotice(part.Username()))
	}

	r.queue.Remove(leaving.Username())
	r.dir.Remove(leaving)

	r.broadcastHelpSummary(p)
	r.broadcastRoster(p)
	r.mu.Unlock()

	p.run(ctx)
	slog.Info("participant disconnected", "username", leaving.Username())
}

// AttachFilePayload stashes a binary payload as the sender's pending file
// buffer, to be consumed by the next file command from that channel.
func (r *Router) AttachFilePayload(ch interfaces.Channel, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	part, ok := r.dir.LookupByChannel(ch)
	if !ok {
		return types.ErrParticipantNotFound
	}
	part.SetFileBuffer(data)
	return nil
}

// ParticipantState is a read-only snapshot of one online participant, served
// by the introspection API.
type ParticipantState struct {
	Username      string `json:"username"`
	Tutor         bool   `json:"tutor"`
	AssignedTutor string `json:"assigned_tutor,omitempty"`
	NeedsHelp     bool   `json:"needs_help"`
}

// Snapshot returns a consistent view of the online set, sorted by username.
func (r *Router) Snapshot() []ParticipantState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]ParticipantState, 0, r.dir.Len())
	for _, part := range r.dir.AllOnline() {
		state := ParticipantState{
			Username:  part.Username(),
			Tutor:     part.IsTutor(),
			NeedsHelp: r.queue.Contains(part.Username()),
		}
		if part.Profile.AssignedTutor != nil {
			state.AssignedTutor = *part.Profile.AssignedTutor
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Username < states[j].Username })
	return states
}

// HelpSummary returns the current aggregate backlog summary.
func (r *Router) HelpSummary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Summary()
}

// OnlineCount returns the number of connected participants.
func (r *Router) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir.Len()
}
