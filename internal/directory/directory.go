// Package directory holds the live set of connected participants. It is a
// pure in-memory lookup structure: transient connection state only, never
// durable profile state.
package directory

import (
	"tutorhub/pkg/interfaces"
	"tutorhub/pkg/types"
)

// Participant is a connected user. It pairs the durable profile snapshot
// with the live channel handle and the transient per-connection state the
// router needs: the in-memory message history (replayed on connect, moved
// into the backlog when the participant's tutor disconnects) and the pending
// file buffer for one in-flight transfer.
type Participant struct {
	Profile  *types.Profile
	Channel  interfaces.Channel
	Messages []*types.Message

	fileBuf []byte
}

// Username returns the participant's unique identity.
func (p *Participant) Username() string {
	return p.Profile.Username
}

// IsTutor reports whether the participant connected as a tutor.
func (p *Participant) IsTutor() bool {
	return p.Profile.Tutor
}

// SetFileBuffer attaches the binary payload for the next file transfer.
func (p *Participant) SetFileBuffer(data []byte) {
	p.fileBuf = data
}

// TakeFileBuffer returns and clears the pending file payload.
func (p *Participant) TakeFileBuffer() []byte {
	buf := p.fileBuf
	p.fileBuf = nil
	return buf
}

// Directory is the connected set, keyed by username with a reverse index by
// channel handle for resolving "which participant disconnected".
//
// The directory is not internally locked. The router's single state lock
// guards the directory and the help queue together, because the
// assignment/backlog invariant spans both structures.
type Directory struct {
	byName    map[string]*Participant
	byChannel map[interfaces.Channel]*Participant
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		byName:    make(map[string]*Participant),
		byChannel: make(map[interfaces.Channel]*Participant),
	}
}

// Add registers a newly connected participant. A second connection for a
// username that is still registered is rejected with ErrDuplicateSession;
// the existing session stays untouched.
func (d *Directory) Add(p *Participant) error {
	if p == nil || p.Channel == nil {
		return ErrNilParticipant
	}
	if _, exists := d.byName[p.Username()]; exists {
		return types.ErrDuplicateSession
	}
	d.byName[p.Username()] = p
	d.byChannel[p.Channel] = p
	return nil
}

// Remove deregisters the participant. Removal and channel-index
// invalidation happen together; idempotent for unknown participants.
func (d *Directory) Remove(p *Participant) {
	if p == nil {
		return
	}
	registered, exists := d.byName[p.Username()]
	if !exists || registered != p {
		return
	}
	delete(d.byName, p.Username())
	delete(d.byChannel, p.Channel)
}

// LookupByName resolves a participant by username.
func (d *Directory) LookupByName(username string) (*Participant, bool) {
	p, ok := d.byName[username]
	return p, ok
}

// LookupByChannel resolves a participant by channel handle.
func (d *Directory) LookupByChannel(ch interfaces.Channel) (*Participant, bool) {
	p, ok := d.byChannel[ch]
	return p, ok
}

// AllOnline returns a snapshot of every connected participant.
func (d *Directory) AllOnline() []*Participant {
	participants := make([]*Participant, 0, len(d.byName))
	for _, p := range d.byName {
		participants = append(participants, p)
	}
	return participants
}

// TutorsOnline returns a snapshot of the connected tutors.
func (d *Directory) TutorsOnline() []*Participant {
	var tutors []*Participant
	for _, p := range d.byName {
		if p.IsTutor() {
			tutors = append(tutors, p)
		}
	}
	return tutors
}

// Len returns the number of connected participants.
func (d *Directory) Len() int {
	return len(d.byName)
}
