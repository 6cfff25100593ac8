package lapi

import (
	"encoding/json"
	"strconv"
	"strings"
)

// OriginCAPI marks decisions distributed by the central/federated feed.
// Those are never stored locally; only decisions produced by this
// installation's own scenarios or operators are relevant to the UI.
const OriginCAPI = "CAPI"

// FlexID tolerates upstream ids that arrive as JSON numbers or as
// arbitrary strings (synthetic/duplicate entries carry non-numeric ids).
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = FlexID(str)
		return nil
	}
	*f = FlexID(s)
	return nil
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	if _, ok := f.Int64(); ok {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

func (f FlexID) String() string { return string(f) }

// Int64 returns the numeric form when the id is numeric.
func (f FlexID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(f), 10, 64)
	return n, err == nil
}

// Alert is the upstream wire shape of GET /v1/alerts. Raw keeps the
// verbatim payload so the store can persist fields this struct does not
// model.
type Alert struct {
	ID           FlexID     `json:"id"`
	UUID         string     `json:"uuid,omitempty"`
	MachineID    string     `json:"machine_id,omitempty"`
	MachineAlias string     `json:"machine_alias,omitempty"`
	CreatedAt    string     `json:"created_at,omitempty"`
	StartAt      string     `json:"start_at,omitempty"`
	StopAt       string     `json:"stop_at,omitempty"`
	Scenario     string     `json:"scenario"`
	Message      string     `json:"message,omitempty"`
	EventsCount  int32      `json:"events_count,omitempty"`
	Capacity     int32      `json:"capacity,omitempty"`
	Leakspeed    string     `json:"leakspeed,omitempty"`
	Simulated    bool       `json:"simulated,omitempty"`
	Source       Source     `json:"source"`
	Decisions    []Decision `json:"decisions,omitempty"`
	Events       []Event    `json:"events,omitempty"`
	Meta         []MetaItem `json:"meta,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (a *Alert) UnmarshalJSON(b []byte) error {
	type alias Alert
	var tmp alias
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*a = Alert(tmp)
	a.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Decision is the upstream wire shape of a single enforcement action.
// Duration is a relative remaining time ("1h22m30s", possibly negative);
// Until, when present, is an absolute RFC3339 expiry.
type Decision struct {
	ID        FlexID `json:"id"`
	UUID      string `json:"uuid,omitempty"`
	Origin    string `json:"origin"`
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	Value     string `json:"value"`
	Duration  string `json:"duration,omitempty"`
	Until     string `json:"until,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (d *Decision) UnmarshalJSON(b []byte) error {
	type alias Decision
	var tmp alias
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*d = Decision(tmp)
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Source describes where the offending traffic came from.
type Source struct {
	Scope     string  `json:"scope"`
	Value     string  `json:"value"`
	IP        string  `json:"ip,omitempty"`
	Range     string  `json:"range,omitempty"`
	AsName    string  `json:"as_name,omitempty"`
	AsNumber  string  `json:"as_number,omitempty"`
	Cn        string  `json:"cn,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Event is one of the raw occurrences that led to an alert. Its metadata
// carries the target_fqdn/target_host/service tags used for target
// resolution.
type Event struct {
	Timestamp string     `json:"timestamp,omitempty"`
	Meta      []MetaItem `json:"meta,omitempty"`
}

// MetaItem is an upstream key/value pair.
type MetaItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetaValue returns the value for key, or "" when absent.
func (e Event) MetaValue(key string) string {
	for _, m := range e.Meta {
		if m.Key == key {
			return m.Value
		}
	}
	return ""
}
