// Package helpqueue holds the backlog of messages from students who have not
// yet been claimed by a tutor. Entries are kept in insertion order of backlog
// creation so the aggregate summary is stable across refreshes.
package helpqueue

import (
	"strings"

	"tutorhub/pkg/types"
)

type entry struct {
	username string
	messages []*types.Message
}

// Queue maps unhelped participants to the messages they sent while waiting.
// It is not internally locked: the router's single state lock guards the
// queue and the directory together, since the assignment/backlog invariant
// must never be observed half-updated.
type Queue struct {
	entries []*entry
	index   map[string]*entry
}

// NewQueue creates an empty help queue.
func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]*entry),
	}
}

// RecordUnhelped appends a message to the participant's backlog, creating the
// backlog entry if absent.
func (q *Queue) RecordUnhelped(username string, msg *types.Message) {
	e, ok := q.index[username]
	if !ok {
		e = &entry{username: username}
		q.entries = append(q.entries, e)
		q.index[username] = e
	}
	e.messages = append(e.messages, msg)
}

// TakeOver removes and returns the participant's full backlog in insertion
// order. A participant with no backlog yields an empty slice.
func (q *Queue) TakeOver(username string) []*types.Message {
	e, ok := q.index[username]
	if !ok {
		return nil
	}
	q.remove(username)
	return e.messages
}

// Release re-creates the participant's backlog seeded with a single
// system-authored message explaining the release.
func (q *Queue) Release(username string, reason *types.Message) {
	q.remove(username)
	q.RecordUnhelped(username, reason)
}

// Seed replaces the participant's backlog with the given messages. Used when
// a tutor disconnects and their students' accumulated messages move back into
// the queue; the entry is created even when the message list is empty.
func (q *Queue) Seed(username string, msgs []*types.Message) {
	q.remove(username)
	e := &entry{username: username, messages: msgs}
	q.entries = append(q.entries, e)
	q.index[username] = e
}

// Remove drops the participant's backlog entirely, as on disconnect.
func (q *Queue) Remove(username string) {
	q.remove(username)
}

// Contains reports whether the participant currently has a backlog entry.
func (q *Queue) Contains(username string) bool {
	_, ok := q.index[username]
	return ok
}

// Len returns the number of backlogged participants.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Summary builds the semicolon-joined "username:firstMessageContent" listing
// for every backlogged participant, in insertion order of backlog creation.
// The joined string is only emitted when longer than one byte, so an empty
// backlog set yields an empty summary.
func (q *Queue) Summary() string {
	var sb strings.Builder
	for i, e := range q.entries {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(e.username)
		sb.WriteByte(':')
		if len(e.messages) > 0 {
			sb.WriteString(e.messages[0].Content)
		}
	}
	if sb.Len() > 1 {
		return sb.String()
	}
	return ""
}

func (q *Queue) remove(username string) {
	if _, ok := q.index[username]; !ok {
		return
	}
	delete(q.index, username)
	for i, e := range q.entries {
		if e.username == username {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
}
