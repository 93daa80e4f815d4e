package transcript

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

func ptr[T any](v T) *T { return &v }

func newTestAssembler() *Assembler {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	return NewAssembler(zap.NewNop()).WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
}

func TestAssembler_UserTurnLifecycle(t *testing.T) {
	a := newTestAssembler()

	id := a.ActiveUserEntry()
	a.UpdateActiveUserEntry(UserUpdate{Status: ptr(entities.EntryStatusSpeaking)})
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("Hel"), Status: ptr(entities.EntryStatusSpeaking), IsFinal: ptr(false)})
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("Hello"), Status: ptr(entities.EntryStatusSpeaking), IsFinal: ptr(false)})
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("Hello there"), Status: ptr(entities.EntryStatusFinal), IsFinal: ptr(true)})
	a.ClearActiveUserEntry()

	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.ID != id {
		t.Errorf("Expected entry %s, got %s", id, got.ID)
	}
	if got.Text != "Hello there" || !got.IsFinal {
		t.Errorf("Expected final 'Hello there', got %q final=%v", got.Text, got.IsFinal)
	}
	if a.ActiveID() != "" {
		t.Error("Expected active user reference to be cleared")
	}
}

func TestAssembler_ActiveUserEntryIsIdempotent(t *testing.T) {
	a := newTestAssembler()

	first := a.ActiveUserEntry()
	second := a.ActiveUserEntry()
	if first != second {
		t.Errorf("Expected same active entry, got %s and %s", first, second)
	}
	if n := len(a.Entries()); n != 1 {
		t.Errorf("Expected 1 entry, got %d", n)
	}

	a.ClearActiveUserEntry()
	third := a.ActiveUserEntry()
	if third == first {
		t.Error("Expected a new active entry after clearing")
	}
	if n := len(a.Entries()); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestAssembler_UpdateWithoutActiveEntryIsNoop(t *testing.T) {
	a := newTestAssembler()
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("ignored")})

	if n := len(a.Entries()); n != 0 {
		t.Errorf("Expected no entries, got %d", n)
	}
}

func TestAssembler_AssistantDeltasCoalesce(t *testing.T) {
	a := newTestAssembler()

	a.AppendAssistantDelta("Hi")
	a.AppendAssistantDelta(" there")
	a.AppendAssistantDelta("!")

	entries := a.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Text != "Hi there!" || entries[0].IsFinal {
		t.Errorf("Expected unfinalized 'Hi there!', got %q final=%v", entries[0].Text, entries[0].IsFinal)
	}
	if entries[0].Role != entities.RoleAssistant {
		t.Errorf("Expected assistant role, got %s", entries[0].Role)
	}
}

func TestAssembler_DeltaAfterFinalStartsNewEntry(t *testing.T) {
	a := newTestAssembler()

	a.AppendAssistantDelta("One")
	a.FinalizeAssistant()
	a.AppendAssistantDelta("Two")

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Text != "Two" || entries[1].IsFinal {
		t.Errorf("Unexpected second entry %+v", entries[1])
	}
}

func TestAssembler_DeltaAfterUserEntryStartsNewEntry(t *testing.T) {
	a := newTestAssembler()

	a.ActiveUserEntry()
	a.AppendAssistantDelta("Reply")

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Role != entities.RoleAssistant {
		t.Errorf("Expected trailing assistant entry, got %s", entries[1].Role)
	}
}

func TestAssembler_FinalizeAssistantIsIdempotent(t *testing.T) {
	a := newTestAssembler()

	if a.FinalizeAssistant() {
		t.Error("Expected no-op on empty transcript")
	}

	a.AppendAssistantDelta("Done")
	if !a.FinalizeAssistant() {
		t.Error("Expected first finalize to change state")
	}
	before := a.Entries()
	if a.FinalizeAssistant() {
		t.Error("Expected second finalize to be a no-op")
	}
	after := a.Entries()
	if before[0] != after[0] {
		t.Errorf("Entry changed on repeated finalize: %+v vs %+v", before[0], after[0])
	}
}

func TestAssembler_UnsavedFinalAndMarkSaved(t *testing.T) {
	a := newTestAssembler()

	a.ActiveUserEntry()
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("Question"), IsFinal: ptr(true), Status: ptr(entities.EntryStatusFinal)})
	a.ClearActiveUserEntry()
	a.AppendAssistantDelta("Answer")
	a.FinalizeAssistant()
	a.AppendAssistantDelta("Still talking")

	unsaved := a.UnsavedFinal()
	if len(unsaved) != 2 {
		t.Fatalf("Expected 2 unsaved entries, got %d", len(unsaved))
	}
	if unsaved[0].Text != "Question" || unsaved[1].Text != "Answer" {
		t.Errorf("Unexpected order: %q, %q", unsaved[0].Text, unsaved[1].Text)
	}

	a.MarkSaved(unsaved[0].ID)
	remaining := a.UnsavedFinal()
	if len(remaining) != 1 || remaining[0].ID != unsaved[1].ID {
		t.Fatalf("Expected only the assistant entry to remain, got %+v", remaining)
	}

	a.MarkSaved(remaining[0].ID)
	if left := a.UnsavedFinal(); len(left) != 0 {
		t.Errorf("Expected no unsaved entries, got %d", len(left))
	}
}

func TestAssembler_SavedNeverReverts(t *testing.T) {
	a := newTestAssembler()

	id := a.ActiveUserEntry()
	a.UpdateActiveUserEntry(UserUpdate{Text: ptr("Hi"), IsFinal: ptr(true)})
	a.MarkSaved(id)
	a.UpdateActiveUserEntry(UserUpdate{Saved: ptr(false)})

	if !a.Entries()[0].Saved {
		t.Error("Expected saved flag to stay true")
	}
}

func TestAssembler_AppendUserText(t *testing.T) {
	a := newTestAssembler()

	a.AppendUserText("typed question")
	entries := a.UnsavedFinal()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 unsaved entry, got %d", len(entries))
	}
	if entries[0].Role != entities.RoleUser || entries[0].Text != "typed question" {
		t.Errorf("Unexpected entry %+v", entries[0])
	}
	if a.ActiveID() != "" {
		t.Error("Typed text must not become the active user entry")
	}
}

func TestAssembler_Reset(t *testing.T) {
	a := newTestAssembler()

	a.ActiveUserEntry()
	a.AppendAssistantDelta("x")
	a.Reset()

	if len(a.Entries()) != 0 || a.ActiveID() != "" {
		t.Error("Expected empty assembler after reset")
	}
}

func TestAssembler_InterruptedAssistant(t *testing.T) {
	a := newTestAssembler()

	a.AppendAssistantDelta("Let me")
	userID := a.ActiveUserEntry()
	a.AppendAssistantDelta(" explain")

	if !a.FinalizeAssistant() {
		t.Fatal("Expected the open assistant entry to be finalized")
	}

	entries := a.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != entities.RoleAssistant || entries[0].Text != "Let me explain" || !entries[0].IsFinal {
		t.Errorf("Unexpected assistant entry %+v", entries[0])
	}
	if entries[1].ID != userID || entries[1].IsFinal {
		t.Errorf("Expected active user entry to stay open, got %+v", entries[1])
	}
	if a.ActiveID() != userID {
		t.Error("Expected user entry to remain active")
	}
}
