package model

// EventEnvelope is the body Slack posts to the Events API webhook.
// URL verification requests carry only Challenge.
type EventEnvelope struct {
	Token     string `json:"token,omitempty"`
	Type      string `json:"type,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Event is the subset of a message event the bridge forwards.
type Event struct {
	Type    string `json:"type,omitempty"`
	BotID   string `json:"bot_id,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
	Channel string `json:"channel,omitempty"`
	Files   []File `json:"files,omitempty"`
}

// FromHuman reports whether the event was authored by a person rather
// than a bot or integration, including this app itself.
func (e *Event) FromHuman() bool {
	return e.BotID == ""
}

// File references an uploaded Slack file. URLPrivate needs the author's
// token to download.
type File struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimetype"`
	URLPrivate string `json:"url_private"`
}
