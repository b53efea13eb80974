package types

// AppURL is a handler URL template with an optional address type ("" matches any).
type AppURL struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// AppHandler is a kind 31990 handler announcement.
type AppHandler struct {
	Event
	Naddr            string        `json:"naddr"`
	Meta             *ProfileEvent `json:"meta,omitempty"`
	InheritedProfile bool          `json:"inherited_profile"`
	Profile          *ProfileInfo  `json:"profile,omitempty"`
	Kinds            []int         `json:"kinds"`
	URLs             []AppURL      `json:"urls"`
	Platforms        []string      `json:"platforms"`
	AppID            string        `json:"app_id"`
	EventURL         string        `json:"event_url,omitempty"`
	Order            int64         `json:"order"`
}

// Clone returns a handler whose slices and pointers are not shared with h.
func (h AppHandler) Clone() AppHandler {
	c := h
	c.Event = h.Event.Clone()
	if h.Meta != nil {
		m := *h.Meta
		m.Event = h.Meta.Event.Clone()
		c.Meta = &m
	}
	if h.Profile != nil {
		p := *h.Profile
		c.Profile = &p
	}
	c.Kinds = append([]int(nil), h.Kinds...)
	c.URLs = append([]AppURL(nil), h.URLs...)
	c.Platforms = append([]string(nil), h.Platforms...)
	return c
}

// App groups handlers that share an app id.
type App struct {
	AppID     string       `json:"app_id"`
	Handlers  []AppHandler `json:"handlers"`
	Kinds     []int        `json:"kinds"`
	Platforms []string     `json:"platforms"`
}

// AppInfo is the result of resolving handlers for a kind.
type AppInfo struct {
	Meta      *ProfileEvent `json:"meta,omitempty"`
	Apps      []App         `json:"apps"`
	Handlers  []AppHandler  `json:"handlers,omitempty"`
	Kinds     []int         `json:"kinds,omitempty"`
	Platforms []string      `json:"platforms,omitempty"`
}

// App returns the app with the given id, or nil.
func (info *AppInfo) App(appID string) *App {
	for i := range info.Apps {
		if info.Apps[i].AppID == appID {
			return &info.Apps[i]
		}
	}
	return nil
}

// Clone deep-copies the info so callers can fill per-address fields.
func (info AppInfo) Clone() AppInfo {
	c := info
	if info.Meta != nil {
		m := *info.Meta
		m.Event = info.Meta.Event.Clone()
		c.Meta = &m
	}
	c.Apps = make([]App, len(info.Apps))
	for i, app := range info.Apps {
		ca := app
		ca.Handlers = make([]AppHandler, len(app.Handlers))
		for j, h := range app.Handlers {
			ca.Handlers[j] = h.Clone()
		}
		ca.Kinds = append([]int(nil), app.Kinds...)
		ca.Platforms = append([]string(nil), app.Platforms...)
		c.Apps[i] = ca
	}
	c.Handlers = make([]AppHandler, len(info.Handlers))
	for i, h := range info.Handlers {
		c.Handlers[i] = h.Clone()
	}
	c.Kinds = append([]int(nil), info.Kinds...)
	c.Platforms = append([]string(nil), info.Platforms...)
	return c
}

// AppSummary is a catalogue entry for a web app.
type AppSummary struct {
	Naddr    string         `json:"naddr"`
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Picture  string         `json:"picture"`
	About    string         `json:"about"`
	Kinds    []int          `json:"kinds"`
	Handlers map[int]AppURL `json:"handlers"`
	Order    int64          `json:"order"`
}
