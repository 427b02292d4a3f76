package store

import (
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// messageDoc is the persisted shape of a message. The legacy document
// store wrote the same semantic fields under several names: the text
// body as `message` or `content`, the origin as a `sender` string or
// an `is_from_user` boolean. Reads tolerate every variant and fold
// them into the one normalized models.Message; writes always emit the
// normalized fields.
type messageDoc struct {
	ID         string    `json:"id,omitempty"`
	Body       string    `json:"body,omitempty"`
	Content    string    `json:"content,omitempty"`
	Message    string    `json:"message,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	IsFromUser *bool     `json:"is_from_user,omitempty"`
	SenderID   string    `json:"sender_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// normalize folds the legacy field variants into a models.Message.
// Body precedence: body, content, message. Origin precedence: the
// normalized origin field, then is_from_user, then the sender string
// ("User" meant the human in the legacy store; anything else was an
// agent name).
func (d messageDoc) normalize() models.Message {
	body := d.Body
	if body == "" {
		body = d.Content
	}
	if body == "" {
		body = d.Message
	}

	origin := models.MessageOrigin(d.Origin)
	if origin != models.OriginUser && origin != models.OriginAgent {
		switch {
		case d.IsFromUser != nil && *d.IsFromUser:
			origin = models.OriginUser
		case d.IsFromUser != nil:
			origin = models.OriginAgent
		case d.Sender == "User":
			origin = models.OriginUser
		default:
			origin = models.OriginAgent
		}
	}

	return models.Message{
		ID:        d.ID,
		Origin:    origin,
		SenderID:  d.SenderID,
		Body:      body,
		Status:    models.MessageStatus(d.Status),
		Timestamp: d.Timestamp,
	}
}

func encodeMessage(m models.Message) messageDoc {
	return messageDoc{
		ID:        m.ID,
		Body:      m.Body,
		Origin:    string(m.Origin),
		SenderID:  m.SenderID,
		Status:    string(m.Status),
		Timestamp: m.Timestamp,
	}
}

func encodeMessages(msgs []models.Message) []messageDoc {
	docs := make([]messageDoc, len(msgs))
	for i, m := range msgs {
		docs[i] = encodeMessage(m)
	}
	return docs
}

func normalizeMessages(docs []messageDoc) []models.Message {
	msgs := make([]models.Message, len(docs))
	for i, d := range docs {
		msgs[i] = d.normalize()
	}
	return msgs
}
