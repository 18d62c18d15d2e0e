package pgeta

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/models"
)

// lookbackWindow: насколько старую ETA ещё считаем актуальной при поиске.
const lookbackWindow = 30 * 24 * time.Hour

// UpsertSnapshot перезаписывает снапшот по натуральному ключу
// (vessel_name, terminal_code, voyage_code). Последняя запись побеждает.
func (s *Storage) UpsertSnapshot(ctx context.Context, snap *models.VesselScheduleSnapshot) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO vessel_schedules (
  vessel_name, voyage_code, terminal_code,
  berth, eta, etd, cutoff, opengate,
  source, raw_payload, scraped_at, expires_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (vessel_name, terminal_code, voyage_code)
DO UPDATE SET
  berth = EXCLUDED.berth,
  eta = EXCLUDED.eta,
  etd = EXCLUDED.etd,
  cutoff = EXCLUDED.cutoff,
  opengate = EXCLUDED.opengate,
  source = EXCLUDED.source,
  raw_payload = EXCLUDED.raw_payload,
  scraped_at = EXCLUDED.scraped_at,
  expires_at = EXCLUDED.expires_at
`,
		snap.VesselName, voyageKey(snap.VoyageCode), snap.TerminalCode,
		snap.Berth, snap.Eta, snap.Etd, snap.Cutoff, snap.Opengate,
		snap.Source, snap.RawPayload, snap.ScrapedAt.UTC(), snap.ExpiresAt.UTC(),
	)
	return errors.Wrap(err, "upsert snapshot")
}

// FindSnapshot ищет свежий снапшот: не протухший, с ETA не старше месяца,
// в пределах текущего календарного года (защита от прошлогодних остатков),
// ближайшая ETA первой.
func (s *Storage) FindSnapshot(ctx context.Context, vesselName string, terminalCode, voyageCode *string, now time.Time) (*models.VesselScheduleSnapshot, error) {
	q := `
SELECT
  id, vessel_name, voyage_code, terminal_code,
  berth, eta, etd, cutoff, opengate,
  source, raw_payload, scraped_at, expires_at
FROM vessel_schedules
WHERE vessel_name = $1
  AND expires_at > $2
  AND eta IS NOT NULL
  AND eta >= $3
  AND date_part('year', eta) = date_part('year', $2::timestamptz)
`
	args := []any{vesselName, now.UTC(), now.UTC().Add(-lookbackWindow)}
	if terminalCode != nil && *terminalCode != "" {
		args = append(args, *terminalCode)
		q += fmt.Sprintf("  AND terminal_code = $%d\n", len(args))
	}
	if voyageCode != nil && *voyageCode != "" {
		args = append(args, *voyageCode)
		q += fmt.Sprintf("  AND voyage_code = $%d\n", len(args))
	}
	q += `ORDER BY eta ASC
LIMIT 1`

	row := s.db.QueryRow(ctx, q, args...)

	var snap models.VesselScheduleSnapshot
	var voyage string
	err := row.Scan(
		&snap.ID, &snap.VesselName, &voyage, &snap.TerminalCode,
		&snap.Berth, &snap.Eta, &snap.Etd, &snap.Cutoff, &snap.Opengate,
		&snap.Source, &snap.RawPayload, &snap.ScrapedAt, &snap.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find snapshot")
	}
	snap.VoyageCode = voyagePtr(voyage)
	return &snap, nil
}

// SweepExpired — регулярная уборка; корректность лукапов от неё не зависит,
// протухшие строки и так отфильтрованы в FindSnapshot.
func (s *Storage) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM vessel_schedules WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "sweep expired snapshots")
	}
	return tag.RowsAffected(), nil
}
