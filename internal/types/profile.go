package types

// ProfileInfo contains user profile metadata (kind 0)
type ProfileInfo struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	About       string `json:"about,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Lud06       string `json:"lud06,omitempty"`
	Website     string `json:"website,omitempty"`

	// Filled from the event, not from content
	PubKey string `json:"pubkey,omitempty"`
	Npub   string `json:"npub,omitempty"`
}

// BestName returns the display name, falling back to the short name.
func (p *ProfileInfo) BestName() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// ProfileEvent is a kind 0 event with its parsed metadata.
type ProfileEvent struct {
	Event
	Profile ProfileInfo
	Order   int64
}

// NewProfileEvent builds a ProfileEvent from a metadata event and its parsed content.
func NewProfileEvent(evt Event, profile ProfileInfo) ProfileEvent {
	return ProfileEvent{Event: evt, Profile: profile, Order: evt.CreatedAt}
}
