package types

// IngestEventRequest is the checkpoint report posted to /ingest/event.
// Timestamp must be ISO-8601 UTC with a literal Z suffix.  FromZone and
// ToZone carry zone codes, with "OUT" (or blank) meaning outside.
type IngestEventRequest struct {
	CheckpointID string `json:"checkpointId"`
	EventID      string `json:"eventId"`
	Timestamp    string `json:"timestamp"`
	FromZone     string `json:"fromZone"`
	ToZone       string `json:"toZone"`
	UserToken    string `json:"userToken"`
	Signature    string `json:"signature"`
}

type IngestAcceptedResponse struct {
	Status       string `json:"status"`
	CheckpointID string `json:"checkpointId"`
	EventID      string `json:"eventId"`
	UserID       string `json:"userId"`
}

type IngestRejectedResponse struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	CheckpointID string `json:"checkpointId"`
	Details      string `json:"details,omitempty"`
}
