// Package types provides shared type definitions used across internal packages.
package types

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// Clone returns a copy of the event that shares no slices with the original.
func (e Event) Clone() Event {
	c := e
	if e.Tags != nil {
		c.Tags = make([][]string, len(e.Tags))
		for i, tag := range e.Tags {
			c.Tags[i] = append([]string(nil), tag...)
		}
	}
	if e.RelaysSeen != nil {
		c.RelaysSeen = append([]string(nil), e.RelaysSeen...)
	}
	return c
}

// TagsNamed returns every tag whose name matches.
func (e Event) TagsNamed(name string) [][]string {
	var out [][]string
	for _, tag := range e.Tags {
		if len(tag) > 0 && tag[0] == name {
			out = append(out, tag)
		}
	}
	return out
}

// TagValue returns the first value of the first tag with the given name, or "".
func (e Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// Identifier returns the "d" tag value.
func (e Event) Identifier() string {
	return e.TagValue("d")
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}
