package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/lapi"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/metrics"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/models"
)

// alertUpdateColumns are refreshed when an already-cached alert is seen
// again upstream; the later sighting wins.
var alertUpdateColumns = []string{"uuid", "created_at", "scenario", "source_ip", "message", "target", "payload"}

// decisionUpdateColumns are refreshed when an already-cached decision is
// seen again upstream.
var decisionUpdateColumns = []string{"alert_id", "created_at", "stop_at", "value", "type", "origin", "scenario", "payload"}

// importAlerts normalizes one fetched batch and writes it in a single
// transaction. It returns the number of alerts written and the decisions
// that were not cached before this batch.
func (e *Engine) importAlerts(ctx context.Context, alerts []lapi.Alert, now time.Time) (int, []models.Decision, error) {
	if len(alerts) == 0 {
		return 0, nil, nil
	}

	rows := make([]models.Alert, 0, len(alerts))
	var decisions []models.Decision
	for _, a := range alerts {
		row, decs := Normalize(a, now)
		rows = append(rows, row)
		decisions = append(decisions, decs...)
	}

	fresh, err := e.upsertBatch(ctx, rows, decisions)
	if err != nil {
		return 0, nil, err
	}

	metrics.AddImported(len(rows))
	return len(rows), fresh, nil
}

// upsertBatch writes alert and decision rows with insert-or-update
// semantics. A single malformed row is skipped rather than failing the
// whole batch; any other error rolls the batch back.
func (e *Engine) upsertBatch(ctx context.Context, alerts []models.Alert, decisions []models.Decision) ([]models.Decision, error) {
	var fresh []models.Decision

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := make(map[string]struct{})
		if len(decisions) > 0 {
			ids := make([]string, 0, len(decisions))
			for i := range decisions {
				ids = append(ids, decisions[i].ID)
			}
			var have []string
			if err := tx.Model(&models.Decision{}).Where("id IN ?", ids).Pluck("id", &have).Error; err != nil {
				return err
			}
			for _, id := range have {
				existing[id] = struct{}{}
			}
		}

		for i := range alerts {
			if err := upsertAlert(tx, &alerts[i]); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					logger.WithComponent("cache").WithField("alert_id", alerts[i].ID).Warn("skipping conflicting alert row")
					continue
				}
				return err
			}
		}

		for i := range decisions {
			if err := upsertDecision(tx, &decisions[i]); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					logger.WithComponent("cache").WithField("decision_id", decisions[i].ID).Warn("skipping conflicting decision row")
					continue
				}
				return err
			}
			if _, ok := existing[decisions[i].ID]; !ok {
				fresh = append(fresh, decisions[i])
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return fresh, nil
}

// upsertAlert inserts or updates one alert row. Rows with a numeric
// upstream id conflict on the primary key; rows without one fall back to
// the uuid as their identity.
func upsertAlert(tx *gorm.DB, a *models.Alert) error {
	if a.ID != 0 {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(alertUpdateColumns),
		}).Create(a).Error
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns(alertUpdateColumns[1:]),
	}).Create(a).Error
}

func upsertDecision(tx *gorm.DB, d *models.Decision) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(decisionUpdateColumns),
	}).Create(d).Error
}

// refreshDecisions applies update-only writes for decisions that are
// still active upstream. Rows missing locally are left missing: creating
// them here would resurrect alerts without their surrounding context.
func (e *Engine) refreshDecisions(ctx context.Context, decisions []models.Decision) (int, error) {
	refreshed := 0

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range decisions {
			res := tx.Model(&models.Decision{}).
				Where("id = ?", decisions[i].ID).
				Updates(map[string]interface{}{
					"stop_at": decisions[i].StopAt,
					"payload": decisions[i].Payload,
				})
			if res.Error != nil {
				return res.Error
			}
			refreshed += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.AddRefreshed(refreshed)
	return refreshed, nil
}

// evictBefore removes alerts created strictly before the cutoff and
// decisions that expired strictly before it. Rows sitting exactly on the
// cutoff stay.
func (e *Engine) evictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("stop_at < ?", cutoff).Delete(&models.Decision{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = tx.Where("created_at < ?", cutoff).Delete(&models.Alert{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.AddEvicted(int(removed))
	return removed, nil
}

// refreshDuplicateHints recomputes the persisted is_duplicate flags from
// the unexpired rows. Expired rows are cleared unconditionally.
func (e *Engine) refreshDuplicateHints(ctx context.Context, now time.Time) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Decision{}).
			Where("stop_at <= ? AND is_duplicate = ?", now, true).
			Update("is_duplicate", false).Error; err != nil {
			return err
		}

		var live []models.Decision
		if err := tx.Where("stop_at > ?", now).Find(&live).Error; err != nil {
			return err
		}

		stored := make([]bool, len(live))
		for i := range live {
			stored[i] = live[i].IsDuplicate
		}
		FlagDuplicates(live, now)

		for i := range live {
			if live[i].IsDuplicate == stored[i] {
				continue
			}
			if err := tx.Model(&models.Decision{}).
				Where("id = ?", live[i].ID).
				Update("is_duplicate", live[i].IsDuplicate).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) fetchAlertRows(ctx context.Context, since time.Time) ([]models.Alert, error) {
	var alerts []models.Alert
	q := e.db.WithContext(ctx).Order("created_at desc, id desc")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (e *Engine) fetchDecisionRows(ctx context.Context, since time.Time, includeExpired bool, now time.Time) ([]models.Decision, error) {
	var decisions []models.Decision
	q := e.db.WithContext(ctx).Order("created_at desc, id desc")
	if !since.IsZero() {
		q = q.Where("created_at >= ?", since)
	}
	if !includeExpired {
		q = q.Where("stop_at > ?", now)
	}
	if err := q.Find(&decisions).Error; err != nil {
		return nil, err
	}
	return decisions, nil
}

func (e *Engine) countRows(ctx context.Context) (alerts int64, decisions int64) {
	e.db.WithContext(ctx).Model(&models.Alert{}).Count(&alerts)
	e.db.WithContext(ctx).Model(&models.Decision{}).Count(&decisions)
	return alerts, decisions
}

func (e *Engine) deleteAlertRow(ctx context.Context, id int64) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_id = ?", id).Delete(&models.Decision{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Alert{}, id).Error
	})
}

func (e *Engine) deleteDecisionRow(ctx context.Context, id string) error {
	return e.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Decision{}).Error
}

func (e *Engine) wipeTables(ctx context.Context) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Decision{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&models.Alert{}).Error
	})
}

func (e *Engine) settingValue(key string) (string, bool) {
	var s models.Setting
	if err := e.db.Where("key = ?", key).First(&s).Error; err != nil {
		return "", false
	}
	return s.Value, true
}

func (e *Engine) putSetting(key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	return e.db.Where(models.Setting{Key: key}).
		Assign(models.Setting{Key: key, Value: value}).
		FirstOrCreate(&setting).Error
}
