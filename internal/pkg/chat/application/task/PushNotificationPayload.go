package task

import (
	"encoding/json"
	"errors"
)

// PushNotificationTaskType is the queue task name for push fallback deliveries.
const PushNotificationTaskType = "push:notify"

// PushNotificationPayload is the JSON payload carried by a push job. The endpoint
// is resolved again when the job runs, so a rotated subscription is honored.
type PushNotificationPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            int64  `json:"seq"`
	Kind           string `json:"kind"`
	Title          string `json:"title"`
	Body           string `json:"body"`
}

var errIncompletePayload = errors.New("push task: userId and messageId are required")

func (p PushNotificationPayload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

func DecodePushNotificationPayload(b []byte) (PushNotificationPayload, error) {
	var p PushNotificationPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, err
	}
	if p.UserID == "" || p.MessageID == "" {
		return p, errIncompletePayload
	}
	return p, nil
}
