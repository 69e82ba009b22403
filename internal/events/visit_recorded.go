package events

// VisitRecorded is emitted when a redirect accepts a visit for recording.
// The payload carries the anonymized fingerprint only, never the raw IP.
type VisitRecorded struct {
	EventID    string `json:"eventId"`
	URLID      string `json:"urlId"`
	IPHash     string `json:"ipHash"`
	UserAgent  string `json:"userAgent"`
	DeviceType string `json:"deviceType"`
	Referrer   string `json:"referrer,omitempty"`
	OccurredAt string `json:"occurredAt"`
}
