package repositories

import (
	"context"

	"github.com/MareskoY/tutor-ai/domain/entities"
)

// CredentialProvider obtains the short-lived token used to open a realtime voice session
type CredentialProvider interface {
	AcquireEphemeralCredential(ctx context.Context) (string, error)
}

// CallRecordStore creates and updates the chat message that records a call
type CallRecordStore interface {
	CreateCallRecord(ctx context.Context, chatID string) (string, error)
	UpdateCallRecord(ctx context.Context, callRecordID string, durationSeconds int) error
}

// TranscriptStore appends finalized transcript entries to a call record
type TranscriptStore interface {
	AppendTranscriptEntries(ctx context.Context, chatID, callRecordID string, entries []entities.TranscriptEntry) error
}
