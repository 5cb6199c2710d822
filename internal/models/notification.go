package models

import "time"

// Notification is one entry in the notification feed, pushed over the
// websocket channel as the payload of a "new_notification" frame.
type Notification struct {
	ID              int64     `json:"id"`
	Actor           string    `json:"actor"`
	Verb            string    `json:"verb"`
	Target          string    `json:"target"`
	TargetURL       string    `json:"target_url"`
	Timestamp       time.Time `json:"timestamp"`
	RecipientUserID int64     `json:"recipient_user_id"`
}
