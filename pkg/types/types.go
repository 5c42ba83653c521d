package types

// Command tags recognized by the router. Anything else is a no-op.
const (
	CommandMessage        = "message"
	CommandWebNoti        = "webNoti"
	CommandFile           = "file"
	CommandTake           = "take"
	CommandSetTutor       = "setTutor"
	CommandConnectedUsers = "connectedUsers"
	CommandRelease        = "release"
	CommandNeedHelp       = "needHelp"
)

// SystemSender is the synthetic identity the router stamps on messages it
// authors itself (tutor assignments, help summaries, roster broadcasts).
const SystemSender = "Server"

// IsSystemSender reports whether a sender name is the router's own identity.
func IsSystemSender(name string) bool {
	return name == SystemSender
}

// Message is the wire-level unit exchanged over a participant channel.
// ToProfile is empty for targetless messages. Binary file payloads travel
// out-of-band as binary frames and are never embedded in a Message.
type Message struct {
	Command     string `json:"command"`
	FromProfile string `json:"fromProfile"`
	ToProfile   string `json:"toProfile,omitempty"`
	Content     string `json:"content"`
}

// Clone returns a copy of the message. Handlers clone before re-dispatching
// so a delivered message and its backlog entry never share mutable state.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// Profile is the durable identity of a participant. The live connection
// handle is deliberately not part of this struct: transient connection state
// belongs to the directory, durable state to the profile store.
type Profile struct {
	Username string `json:"username"`
	Tutor    bool   `json:"tutor"`

	// AssignedTutor distinguishes three states: nil means never assigned or
	// cleared by a disconnect, a pointer to "" means explicitly released by a
	// tutor, anything else is the assigned tutor's username.
	AssignedTutor *string `json:"assignedTutor,omitempty"`

	PushToken string `json:"pushToken,omitempty"`
}

// HasTutor reports whether the profile currently has a real tutor assigned.
func (p *Profile) HasTutor() bool {
	return p.AssignedTutor != nil && *p.AssignedTutor != ""
}

// AssignTutor sets the assigned tutor to the given username.
func (p *Profile) AssignTutor(tutor string) {
	p.AssignedTutor = &tutor
}

// ReleaseTutor marks the profile as explicitly released (empty string,
// distinct from the nil unassigned state).
func (p *Profile) ReleaseTutor() {
	empty := ""
	p.AssignedTutor = &empty
}

// ClearTutor resets the profile to the unassigned state.
func (p *Profile) ClearTutor() {
	p.AssignedTutor = nil
}

// NewSetTutorNotice builds the system message informing a student which tutor
// now has their case.
func NewSetTutorNotice(student, tutor string) *Message {
	return &Message{
		Command:     CommandSetTutor,
		FromProfile: SystemSender,
		ToProfile:   student,
		Content:     tutor,
	}
}

// NewTutorRemovedNotice builds the system message informing a student that
// they no longer have a tutor. Content is empty by contract; clients treat an
// empty tutor name as "unassigned".
func NewTutorRemovedNotice(student string) *Message {
	return &Message{
		Command:     CommandSetTutor,
		FromProfile: SystemSender,
		ToProfile:   student,
		Content:     "",
	}
}

// NewHelpSummary builds the aggregate "who needs help" broadcast carrying the
// semicolon-joined backlog summary.
func NewHelpSummary(summary string) *Message {
	return &Message{
		Command:     CommandNeedHelp,
		FromProfile: SystemSender,
		Content:     summary,
	}
}

// NewRosterMessage builds the per-tutor roster broadcast listing the students
// currently assigned to that tutor.
func NewRosterMessage(tutor, roster string) *Message {
	return &Message{
		Command:     CommandConnectedUsers,
		FromProfile: SystemSender,
		ToProfile:   tutor,
		Content:     roster,
	}
}
