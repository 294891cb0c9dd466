package credstore

import (
	"encoding/json"
	"fmt"
)

// Cookie is one browser cookie in storage-state form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch, -1 for session cookies
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"` // Strict, Lax or None
}

// StorageItem is a single localStorage entry.
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// OriginState holds the localStorage entries captured for one origin.
type OriginState struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// StorageState is the session material a browser session produces and
// consumes: cookies plus per-origin storage.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Record is the content of one credential file. The cookies and origins
// fields are typed; every other top-level field is carried through
// unchanged so a relogin never drops data it does not understand.
type Record struct {
	Cookies []Cookie
	Origins []OriginState

	extra map[string]json.RawMessage
}

// NewRecord creates a record holding the given session state.
func NewRecord(state StorageState) *Record {
	r := &Record{}
	r.ReplaceSession(state)
	return r
}

// Session returns the record's session state.
func (r *Record) Session() StorageState {
	return StorageState{Cookies: r.Cookies, Origins: r.Origins}
}

// ReplaceSession replaces cookies and origins wholesale.
func (r *Record) ReplaceSession(state StorageState) {
	r.Cookies = state.Cookies
	r.Origins = state.Origins
}

// Field returns the raw JSON of an untyped top-level field.
func (r *Record) Field(name string) (json.RawMessage, bool) {
	v, ok := r.extra[name]
	return v, ok
}

// UnmarshalJSON decodes a credential record, keeping unknown fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("credential record is not an object")
	}

	r.Cookies = nil
	r.Origins = nil
	if v, ok := raw["cookies"]; ok {
		if err := json.Unmarshal(v, &r.Cookies); err != nil {
			return fmt.Errorf("decoding cookies: %w", err)
		}
		delete(raw, "cookies")
	}
	if v, ok := raw["origins"]; ok {
		if err := json.Unmarshal(v, &r.Origins); err != nil {
			return fmt.Errorf("decoding origins: %w", err)
		}
		delete(raw, "origins")
	}
	r.extra = raw
	return nil
}

// MarshalJSON encodes the record with its preserved fields.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.extra)+2)
	for k, v := range r.extra {
		out[k] = v
	}

	cookies := r.Cookies
	if cookies == nil {
		cookies = []Cookie{}
	}
	origins := r.Origins
	if origins == nil {
		origins = []OriginState{}
	}
	out["cookies"] = cookies
	out["origins"] = origins
	return json.Marshal(out)
}
