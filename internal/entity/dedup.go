package entity

import (
	"github.com/stewardhq/steward/internal/storage"
	"github.com/stewardhq/steward/pkg/models"
)

// replayDedup converts a recorded reply back into the call's result.
func replayDedup(entry *storage.JournalEntry) ([]byte, error) {
	if entry.Status == storage.JournalFailed {
		return nil, models.DecodeError(entry.SerializedError)
	}
	return entry.SerializedResult, nil
}

func encodeDedupError(err error) []byte {
	return models.EncodeError(err)
}
