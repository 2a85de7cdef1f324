package chat

import "time"

// Conversation is the single thread between one requester and one staff participant.
// At most one exists per (RequesterID, StaffID) pair.
type Conversation struct {
	ID          string    `db:"id" json:"id"`
	RequesterID string    `db:"requester_id" json:"requesterId"`
	StaffID     string    `db:"staff_id" json:"staffId"`
	LastSeq     int64     `db:"last_seq" json:"lastSeq"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// HasParticipant tells whether userID is one of the two parties.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.RequesterID || userID == c.StaffID)
}

// RecipientOf returns the party that should be notified about a message from senderID.
// Anything not sent by the requester (including broadcasts from other admins) goes to the requester.
func (c Conversation) RecipientOf(senderID string) string {
	if senderID == c.RequesterID {
		return c.StaffID
	}
	return c.RequesterID
}
