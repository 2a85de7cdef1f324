package chat

import "time"

// PushEndpoint is the single push-delivery target registered for a user.
// KeyA and KeyB are the subscription's p256dh and auth secrets.
type PushEndpoint struct {
	UserID    string    `db:"user_id" json:"userId"`
	Endpoint  string    `db:"endpoint" json:"endpoint"`
	KeyA      string    `db:"key_a" json:"keyA"`
	KeyB      string    `db:"key_b" json:"keyB"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
