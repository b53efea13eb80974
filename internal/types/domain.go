package types

// AuthoredEvent is an event with the author's profile attached (nil when unknown).
type AuthoredEvent struct {
	Event
	Author *ProfileEvent
	Order  int64
}

func NewAuthoredEvent(evt Event, author *ProfileEvent) AuthoredEvent {
	return AuthoredEvent{Event: evt, Author: author, Order: evt.CreatedAt}
}

// LongNote is a kind 30023 post.
type LongNote struct {
	AuthoredEvent
	Title       string
	Summary     string
	PublishedAt int64
}

func NewLongNote(base AuthoredEvent, title, summary string, publishedAt int64) LongNote {
	return LongNote{AuthoredEvent: base, Title: title, Summary: summary, PublishedAt: publishedAt}
}

// Highlight is a kind 9802 quote of some source.
type Highlight struct {
	AuthoredEvent
	Context   string
	SourceURL string
}

func NewHighlight(base AuthoredEvent, context, source string) Highlight {
	return Highlight{AuthoredEvent: base, Context: context, SourceURL: source}
}

// Zap is a kind 9735 receipt joined with its request, invoice and targets.
type Zap struct {
	Event
	Description *Event
	Bolt11      string
	AmountMsat  int64
	HasAmount   bool

	TargetEventID  string
	TargetAddr     string
	TargetPubkey   string
	ProviderPubkey string
	SenderPubkey   string

	TargetEvent  *AuthoredEvent
	TargetMeta   *ProfileEvent
	ProviderMeta *ProfileEvent
	SenderMeta   *ProfileEvent
	Order        int64
}

// ZapFields holds the values parsed from a receipt's tags.
type ZapFields struct {
	Description *Event
	Bolt11      string
	AmountMsat  int64
	HasAmount   bool
	TargetEvent string
	TargetAddr  string
	TargetPub   string
}

func NewZap(evt Event, f ZapFields) Zap {
	z := Zap{
		Event:          evt,
		Description:    f.Description,
		Bolt11:         f.Bolt11,
		AmountMsat:     f.AmountMsat,
		HasAmount:      f.HasAmount,
		TargetEventID:  f.TargetEvent,
		TargetAddr:     f.TargetAddr,
		TargetPubkey:   f.TargetPub,
		ProviderPubkey: evt.PubKey,
		Order:          evt.CreatedAt,
	}
	if f.Description != nil {
		z.SenderPubkey = f.Description.PubKey
	}
	return z
}

// LiveEvent is a kind 30311 stream.
type LiveEvent struct {
	AuthoredEvent
	Title               string
	Summary             string
	Starts              int64
	CurrentParticipants int
	Status              string
	Host                string
	Members             []string
	HostMeta            *ProfileEvent
	MemberMetas         []ProfileEvent
}

// LiveFields holds the values parsed from a live event's tags.
type LiveFields struct {
	Title               string
	Summary             string
	Starts              int64
	CurrentParticipants int
	Status              string
	Host                string
	Members             []string
}

func NewLiveEvent(evt Event, f LiveFields) LiveEvent {
	return LiveEvent{
		AuthoredEvent:       NewAuthoredEvent(evt, nil),
		Title:               f.Title,
		Summary:             f.Summary,
		Starts:              f.Starts,
		CurrentParticipants: f.CurrentParticipants,
		Status:              f.Status,
		Host:                f.Host,
		Members:             f.Members,
	}
}

// Community is a kind 34550 community definition.
type Community struct {
	AuthoredEvent
	Name           string
	Description    string
	Image          string
	Moderators     []string
	ModeratorMetas []ProfileEvent
}

func NewCommunity(evt Event, name, description, image string, moderators []string) Community {
	return Community{
		AuthoredEvent: NewAuthoredEvent(evt, nil),
		Name:          name,
		Description:   description,
		Image:         image,
		Moderators:    moderators,
	}
}

// CommunityApproval is the part of a kind 4550 event that points at a community.
type CommunityApproval struct {
	CreatedAt           int64
	CommunityPubkey     string
	CommunityIdentifier string
}

// ActiveCommunity is a community ranked by its latest approved post.
type ActiveCommunity struct {
	Community
	LastPostTime int64
	Posts        int
}

func NewActiveCommunity(c Community, lastPost int64, posts int) ActiveCommunity {
	ac := ActiveCommunity{Community: c, LastPostTime: lastPost, Posts: posts}
	ac.Order = lastPost
	return ac
}

// ContactList is a kind 3 event with the profiles of its contacts.
type ContactList struct {
	Event
	ContactPubkeys []string
	Contacts       []ProfileEvent
	Order          int64
}

func NewContactList(evt Event, pubkeys []string, contacts []ProfileEvent) ContactList {
	return ContactList{Event: evt, ContactPubkeys: pubkeys, Contacts: contacts, Order: evt.CreatedAt}
}
