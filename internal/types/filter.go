package types

import (
	"encoding/json"
	"slices"
)

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	PTags   []string // #p tag filter (mentions)
	ETags   []string // #e tag filter (event references)
	ATags   []string // #a tag filter (addressable events)
	DTags   []string // #d tag filter (d-tag for addressable events)
	KTags   []string // #k tag filter (kind references, used for NIP-89)
	Search  string   // NIP-50 search query
}

// ToMap builds the REQ filter object sent to relays.
func (f Filter) ToMap() map[string]interface{} {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if len(f.ATags) > 0 {
		m["#a"] = f.ATags
	}
	if len(f.DTags) > 0 {
		m["#d"] = f.DTags
	}
	if len(f.KTags) > 0 {
		m["#k"] = f.KTags
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	return m
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ToMap())
}

// Matches reports whether the event satisfies every constraint of the filter
// except Limit and Search, which only relays can evaluate.
func (f Filter) Matches(evt Event) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, evt.ID) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, evt.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, evt.Kind) {
		return false
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	tagFilters := []struct {
		name   string
		values []string
	}{
		{"p", f.PTags}, {"e", f.ETags}, {"a", f.ATags}, {"d", f.DTags}, {"k", f.KTags},
	}
	for _, tf := range tagFilters {
		if len(tf.values) == 0 {
			continue
		}
		found := false
		for _, tag := range evt.TagsNamed(tf.name) {
			if len(tag) >= 2 && slices.Contains(tf.values, tag[1]) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
