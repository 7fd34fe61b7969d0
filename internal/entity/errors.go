package entity

import (
	"fmt"

	"github.com/stewardhq/steward/pkg/models"
)

// MailboxFullError is returned when an entity's bounded mailbox cannot accept
// another message.
type MailboxFullError struct {
	EntityType string `json:"entity_type"`
	EntityKey  string `json:"entity_key"`
}

func (e *MailboxFullError) Error() string {
	return fmt.Sprintf("mailbox full for entity %s/%s", e.EntityType, e.EntityKey)
}

// Code returns the stable error code.
func (e *MailboxFullError) Code() string { return models.CodeMailboxFull }

// AlreadyProcessingError is returned when a keyed streaming message is
// submitted while an identical key is still in flight on the same entity.
type AlreadyProcessingError struct {
	EntityType string `json:"entity_type"`
	EntityKey  string `json:"entity_key"`
	MessageKey string `json:"message_key"`
}

func (e *AlreadyProcessingError) Error() string {
	return fmt.Sprintf("entity %s/%s is already processing message %s", e.EntityType, e.EntityKey, e.MessageKey)
}

// Code returns the stable error code.
func (e *AlreadyProcessingError) Code() string { return models.CodeAlreadyProcessing }
