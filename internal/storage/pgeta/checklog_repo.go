package pgeta

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/models"
)

const checkLogColumns = `
  id, shipment_id, terminal_code, vessel_name, voyage_code,
  shipment_eta, updated_eta, tracking_status,
  vessel_found, voyage_found, raw_payload, error, initiator, checked_at`

func scanCheckLog(row pgx.Row) (*models.EtaCheckLog, error) {
	var l models.EtaCheckLog
	err := row.Scan(
		&l.ID, &l.ShipmentID, &l.TerminalCode, &l.VesselName, &l.VoyageCode,
		&l.ShipmentEta, &l.UpdatedEta, &l.TrackingStatus,
		&l.VesselFound, &l.VoyageFound, &l.RawPayload, &l.Error, &l.Initiator, &l.CheckedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// LastConfirmedSighting — последняя запись, где судно и рейс были подтверждены
// и была получена ETA. По ней выводим "судно ушло" при пропаже из выдачи.
func (s *Storage) LastConfirmedSighting(ctx context.Context, shipmentID uint64) (*models.EtaCheckLog, error) {
	l, err := scanCheckLog(s.db.QueryRow(ctx, `
SELECT`+checkLogColumns+`
FROM eta_check_logs
WHERE shipment_id = $1
  AND vessel_found
  AND voyage_found
  AND updated_eta IS NOT NULL
ORDER BY checked_at DESC
LIMIT 1
`, shipmentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select last confirmed sighting")
	}
	return l, nil
}

func (s *Storage) ListCheckLogs(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.EtaCheckLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT`+checkLogColumns+`
FROM eta_check_logs
WHERE shipment_id = $1
ORDER BY checked_at DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select check logs")
	}
	defer rows.Close()

	var out []*models.EtaCheckLog
	for rows.Next() {
		l, err := scanCheckLog(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan check log")
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
