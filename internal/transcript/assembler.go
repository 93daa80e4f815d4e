package transcript

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

// UserUpdate carries the optional fields merged into the active user entry.
// Nil fields are left untouched.
type UserUpdate struct {
	Text    *string
	Status  *entities.EntryStatus
	IsFinal *bool
	Saved   *bool
}

// Assembler builds the ordered call transcript from streamed protocol events.
//
// Entries are only ever appended; existing entries are mutated in place and
// removed only by Reset. At most one user entry is "active" (still receiving
// transcription) and at most one assistant entry, the most recent one, is
// unfinalized.
type Assembler struct {
	mu       sync.RWMutex
	entries  []entities.ConversationEntry
	activeID string

	now    func() time.Time
	logger *zap.Logger
}

// NewAssembler creates an empty assembler
func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the timestamp source
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// ActiveUserEntry returns the id of the active user entry, creating a new
// speaking entry when none is active.
func (a *Assembler) ActiveUserEntry() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeUserLocked()
}

func (a *Assembler) activeUserLocked() string {
	if a.activeID != "" {
		return a.activeID
	}
	entry := entities.NewUserEntry(a.now())
	a.entries = append(a.entries, entry)
	a.activeID = entry.ID
	return entry.ID
}

// UpdateActiveUserEntry merges u into the active user entry. It does nothing
// when no user entry is active.
func (a *Assembler) UpdateActiveUserEntry(u UserUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.indexLocked(a.activeID)
	if idx < 0 {
		a.logger.Debug("No active user entry to update")
		return
	}

	entry := &a.entries[idx]
	if u.Text != nil {
		entry.Text = *u.Text
	}
	if u.Status != nil {
		entry.Status = *u.Status
	}
	if u.IsFinal != nil {
		entry.IsFinal = *u.IsFinal
	}
	// saved never reverts once persisted
	if u.Saved != nil && !entry.Saved {
		entry.Saved = *u.Saved
	}
}

// ClearActiveUserEntry forgets the active user entry; the entry itself stays
func (a *Assembler) ClearActiveUserEntry() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activeID = ""
}

// AppendAssistantDelta extends the open assistant entry with delta, or starts
// a new assistant entry. The open entry may sit behind a user entry that
// interrupted it.
func (a *Assembler) AppendAssistantDelta(delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx := a.lastAssistantLocked(); idx >= 0 && !a.entries[idx].IsFinal {
		a.entries[idx].Text += delta
		return
	}
	a.entries = append(a.entries, entities.NewAssistantEntry(delta, a.now()))
}

// FinalizeAssistant marks the most recent assistant entry final. User entries
// are never touched. It reports whether anything changed.
func (a *Assembler) FinalizeAssistant() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.lastAssistantLocked()
	if idx < 0 || a.entries[idx].IsFinal {
		return false
	}
	a.entries[idx].IsFinal = true
	return true
}

func (a *Assembler) lastAssistantLocked() int {
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].Role == entities.RoleAssistant {
			return i
		}
	}
	return -1
}

// AppendUserText records a typed user message as a final user entry
func (a *Assembler) AppendUserText(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := entities.NewUserEntry(a.now())
	entry.Text = text
	entry.IsFinal = true
	entry.Status = entities.EntryStatusFinal
	a.entries = append(a.entries, entry)
	return entry.ID
}

// UnsavedFinal returns, in order, the final entries not yet persisted
func (a *Assembler) UnsavedFinal() []entities.ConversationEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []entities.ConversationEntry
	for _, e := range a.entries {
		if e.Persistable() {
			out = append(out, e)
		}
	}
	return out
}

// MarkSaved flags the entries with the given ids as persisted
func (a *Assembler) MarkSaved(ids ...string) {
	if len(ids) == 0 {
		return
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.entries {
		if _, ok := set[a.entries[i].ID]; ok {
			a.entries[i].Saved = true
		}
	}
}

// Reset drops all entries and the active user reference
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.activeID = ""
}

// Entries returns a copy of the transcript
func (a *Assembler) Entries() []entities.ConversationEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]entities.ConversationEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// ActiveID returns the active user entry id, or "" when none is active
func (a *Assembler) ActiveID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.activeID
}

func (a *Assembler) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].ID == id {
			return i
		}
	}
	return -1
}
