package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// Hydrate recomputes the presentation fields of a decision relative to
// now. Expiry is inclusive: a decision whose stop_at equals now is
// already expired and reports a remaining duration of "0s".
func Hydrate(d *models.Decision, now time.Time) {
	if !d.StopAt.After(now) {
		d.Expired = true
		d.Duration = "0s"
		return
	}
	d.Expired = false
	d.Duration = d.StopAt.Sub(now).Truncate(time.Second).String()
}

// FlagDuplicates marks redundant bans in place. Decisions compete per
// banned value; only unexpired rows enter the contest, the lowest numeric
// id wins, numeric ids beat synthetic ones, and a group with no numeric
// id keeps its lexicographically smallest member. Expired rows are never
// duplicates. Both the read path and the persisted hint refresh go
// through this function so the two can not drift apart.
func FlagDuplicates(rows []models.Decision, now time.Time) {
	canonical := make(map[string]int)
	for i := range rows {
		rows[i].IsDuplicate = false
		if !rows[i].StopAt.After(now) {
			continue
		}
		j, ok := canonical[rows[i].Value]
		if !ok {
			canonical[rows[i].Value] = i
			continue
		}
		if beats(rows[i].ID, rows[j].ID) {
			rows[j].IsDuplicate = true
			canonical[rows[i].Value] = i
		} else {
			rows[i].IsDuplicate = true
		}
	}
}

// beats reports whether id a outranks id b for canonical selection.
func beats(a, b string) bool {
	an, aok := numericID(a)
	bn, bok := numericID(b)
	switch {
	case aok && bok:
		return an < bn
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

func numericID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	return n, err == nil
}
