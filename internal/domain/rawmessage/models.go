package rawmessage

import (
	"errors"
	"fmt"
	"time"

	"mailledger/internal/shared/apperr"
)

// Status values for a stored message.
const (
	StatusStored    = "stored"
	StatusProcessed = "processed"
	StatusError     = "error"
)

// DedupWindow is the trailing interval used to match messages that carry no
// Message-ID by body hash.
const DedupWindow = 48 * time.Hour

var validStatuses = map[string]struct{}{
	StatusStored:    {},
	StatusProcessed: {},
	StatusError:     {},
}

// Domain errors
var (
	ErrRawMessageNotFound = fmt.Errorf("raw message not found: %w", apperr.ErrNotFound)
	ErrDuplicateMessageID = errors.New("raw message with this message id already exists")
	ErrInvalidStatus      = fmt.Errorf("invalid raw message status: %w", apperr.ErrInvalidInput)
	ErrBodyHashRequired   = fmt.Errorf("body hash is required: %w", apperr.ErrInvalidInput)
	ErrMessageIDRequired  = fmt.Errorf("message id is required: %w", apperr.ErrInvalidInput)
)

// RawMessage is a notification email as first seen by ingestion.
type RawMessage struct {
	ID          int64      `json:"id"`
	MessageID   *string    `json:"messageId,omitempty"`
	MailboxUID  string     `json:"mailboxUid,omitempty"`
	ReceivedAt  time.Time  `json:"receivedAt"`
	Subject     string     `json:"subject"`
	FromAddress string     `json:"fromAddress"`
	BodyHash    string     `json:"bodyHash"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// CreateParams carries every mutable field of a RawMessage. It is used both
// for inserts and for refreshing an existing row by Message-ID.
type CreateParams struct {
	MessageID   *string
	MailboxUID  string
	ReceivedAt  time.Time
	Subject     string
	FromAddress string
	BodyHash    string
	Body        string
	Status      string
	ProcessedAt *time.Time
	Error       *string
}

// Validate checks the params before they reach storage.
func (p *CreateParams) Validate() error {
	if p.BodyHash == "" {
		return ErrBodyHashRequired
	}
	if _, ok := validStatuses[p.Status]; !ok {
		return fmt.Errorf("%q: %w", p.Status, ErrInvalidStatus)
	}
	if p.MessageID != nil && *p.MessageID == "" {
		p.MessageID = nil
	}
	return nil
}
