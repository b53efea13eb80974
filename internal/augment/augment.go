// Package augment joins raw events with the related events they reference
// (author profiles, zap targets, approvals) to build domain objects.
// Inputs are never modified.
package augment

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"nostr-universe/internal/relay"
	"nostr-universe/internal/types"
)

// excerptRunes caps the summary derived from long-form content.
const excerptRunes = 280

// Augmenter fetches related entities through a Fetcher.
type Augmenter struct {
	fetcher *relay.Fetcher
	md      goldmark.Markdown

	// Now is the clock used for live event staleness.
	Now func() time.Time
}

func New(fetcher *relay.Fetcher) *Augmenter {
	return &Augmenter{fetcher: fetcher, md: goldmark.New(), Now: time.Now}
}

// Authors attaches each event's author profile. Unknown authors are left nil.
func (a *Augmenter) Authors(ctx context.Context, events []types.Event) []types.AuthoredEvent {
	pubkeys := make([]string, 0, len(events))
	for _, evt := range events {
		pubkeys = append(pubkeys, evt.PubKey)
	}
	profiles := a.fetcher.FetchProfiles(ctx, unique(pubkeys))

	out := make([]types.AuthoredEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, types.NewAuthoredEvent(evt.Clone(), profileOf(profiles, evt.PubKey)))
	}
	return out
}

// LongNotes reads title, summary and published_at from kind 30023 events.
// An empty summary is replaced by the first paragraph of the markdown body.
func (a *Augmenter) LongNotes(events []types.AuthoredEvent) []types.LongNote {
	out := make([]types.LongNote, 0, len(events))
	for _, evt := range events {
		summary := evt.TagValue("summary")
		if summary == "" {
			summary = a.excerpt(evt.Content)
		}
		out = append(out, types.NewLongNote(evt, evt.TagValue("title"), summary, parseNumber(evt.TagValue("published_at"))))
	}
	return out
}

// Highlights reads the quoted context and source url of kind 9802 events.
func (a *Augmenter) Highlights(events []types.AuthoredEvent) []types.Highlight {
	out := make([]types.Highlight, 0, len(events))
	for _, evt := range events {
		out = append(out, types.NewHighlight(evt, evt.TagValue("context"), evt.TagValue("r")))
	}
	return out
}

// excerpt returns the plain text of the first markdown paragraph.
func (a *Augmenter) excerpt(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	src := []byte(content)
	doc := a.md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	var para ast.Node
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if para == nil {
			if entering && n.Kind() == ast.KindParagraph {
				para = n
			}
			return ast.WalkContinue, nil
		}
		if !entering {
			if n == para {
				return ast.WalkStop, nil
			}
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		slog.Debug("augment: excerpt walk failed", "error", err)
		return ""
	}

	s := strings.TrimSpace(b.String())
	if r := []rune(s); len(r) > excerptRunes {
		s = strings.TrimSpace(string(r[:excerptRunes])) + "..."
	}
	return s
}

// parseNumber reads a numeric tag the way a JSON number would be read.
// Anything unparsable is 0.
func parseNumber(s string) int64 {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func profileOf(profiles map[string]types.ProfileEvent, pubkey string) *types.ProfileEvent {
	p, ok := profiles[pubkey]
	if !ok {
		return nil
	}
	return &p
}

// unique drops empty and repeated values, keeping first-seen order.
func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortByOrderDesc[T any](items []T, order func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		return order(items[i]) > order(items[j])
	})
}
