package cache

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// unknownTarget is the display target when no resolution rule matched.
const unknownTarget = "Unknown"

// targetMetaKeys is the event-metadata probe order for target resolution.
var targetMetaKeys = []string{"target_fqdn", "target_host", "service"}

// ResolveTarget derives the human-facing target of an upstream alert.
// Event metadata wins, then the service segment of the scenario name,
// then the reporting machine, and "Unknown" when nothing matched.
func ResolveTarget(alert lapi.Alert) string {
	for _, ev := range alert.Events {
		for _, key := range targetMetaKeys {
			if v := ev.MetaValue(key); v != "" {
				return v
			}
		}
	}

	if slash := strings.IndexByte(alert.Scenario, '/'); slash >= 0 {
		name := alert.Scenario[slash+1:]
		if hyphen := strings.IndexByte(name, '-'); hyphen >= 0 {
			name = name[:hyphen]
		}
		if name != "" {
			return name
		}
	}

	if alert.MachineAlias != "" {
		return alert.MachineAlias
	}
	if alert.MachineID != "" {
		return alert.MachineID
	}

	return unknownTarget
}

// Normalize converts one upstream alert into its local alert row plus the
// decision rows to cache. Federated-feed decisions are dropped, expiry is
// anchored to now, and missing upstream fields degrade to zero values
// instead of failing the record.
func Normalize(alert lapi.Alert, now time.Time) (models.Alert, []models.Decision) {
	row := models.Alert{
		UUID:      alert.UUID,
		CreatedAt: parseUpstreamTime(alert.CreatedAt, now),
		Scenario:  alert.Scenario,
		SourceIP:  sourceValue(alert.Source),
		Message:   alert.Message,
		Target:    ResolveTarget(alert),
		Payload:   string(alert.Raw),
	}

	if id, ok := alert.ID.Int64(); ok {
		row.ID = id
	} else if row.UUID == "" {
		// Non-numeric upstream id and no uuid: derive a stable identity
		// from the id text so repeated syncs land on the same row.
		row.UUID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("alert:"+alert.ID.String())).String()
	}

	decisions := make([]models.Decision, 0, len(alert.Decisions))
	for _, d := range alert.Decisions {
		if d.Origin == lapi.OriginCAPI {
			continue
		}
		decisions = append(decisions, models.Decision{
			ID:        d.ID.String(),
			UUID:      d.UUID,
			AlertID:   row.ID,
			CreatedAt: row.CreatedAt,
			StopAt:    resolveStopAt(d, row.CreatedAt, now),
			Value:     d.Value,
			Type:      d.Type,
			Origin:    d.Origin,
			Scenario:  decisionScenario(d, alert),
			Payload:   string(d.Raw),
		})
	}

	return row, decisions
}

// resolveStopAt computes the absolute expiry of a decision. A relative
// duration anchors to now, an absolute until field is taken verbatim, and
// a decision with neither is already expired at its creation time.
func resolveStopAt(d lapi.Decision, createdAt, now time.Time) time.Time {
	if d.Duration != "" {
		if dur, err := time.ParseDuration(d.Duration); err == nil {
			return now.Add(dur)
		}
	}
	if d.Until != "" {
		if t, ok := parseTime(d.Until); ok {
			return t
		}
	}
	return createdAt
}

func decisionScenario(d lapi.Decision, alert lapi.Alert) string {
	if d.Scenario != "" {
		return d.Scenario
	}
	return alert.Scenario
}

func sourceValue(s lapi.Source) string {
	if s.IP != "" {
		return s.IP
	}
	if s.Value != "" {
		return s.Value
	}
	return s.Range
}

func parseUpstreamTime(s string, fallback time.Time) time.Time {
	if t, ok := parseTime(s); ok {
		return t
	}
	return fallback
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
