package pgeta

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/models"
)

const (
	recheckAfter  = 4 * time.Hour
	windowBehind  = 7 * 24 * time.Hour
	windowAhead   = 30 * 24 * time.Hour
)

const shipmentColumns = `
  id, reference, vessel_name, voyage_code, terminal_code,
  planned_delivery_date, last_eta_check_at, bot_received_eta_date,
  tracking_status, departed, status,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	err := row.Scan(
		&sh.ID, &sh.Reference, &sh.VesselName, &sh.VoyageCode, &sh.TerminalCode,
		&sh.PlannedDeliveryDate, &sh.LastEtaCheckAt, &sh.BotReceivedEtaDate,
		&sh.TrackingStatus, &sh.Departed, &sh.Status,
		&sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	now := time.Now().UTC()

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  reference, vessel_name, voyage_code, terminal_code, planned_delivery_date,
  status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (reference)
DO UPDATE SET
  vessel_name = EXCLUDED.vessel_name,
  voyage_code = EXCLUDED.voyage_code,
  terminal_code = EXCLUDED.terminal_code,
  planned_delivery_date = EXCLUDED.planned_delivery_date,
  updated_at = now()
RETURNING id
`, in.Reference, in.VesselName, in.VoyageCode, in.TerminalCode, in.PlannedDeliveryDate,
		models.ShipmentStatusInProgress, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert shipment")
	}

	return s.GetShipmentByID(ctx, id)
}

func (s *Storage) GetShipmentByID(ctx context.Context, id uint64) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// SelectDueShipments выбирает партии на проверку ETA.
// Обычный режим: в работе + назначены судно и терминал + (ни разу не проверяли
// или прошло больше 4 часов) + плановая дата в окне [-7d, +30d].
// force пропускает тайминг и окно, но не требования к судну/терминалу.
func (s *Storage) SelectDueShipments(ctx context.Context, now time.Time, limit int, force bool) ([]*models.Shipment, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := `
SELECT` + shipmentColumns + `
FROM shipments
WHERE status = $1
  AND vessel_name <> ''
  AND terminal_code IS NOT NULL
  AND terminal_code <> ''
`
	args := []any{models.ShipmentStatusInProgress}
	if !force {
		args = append(args, now.UTC().Add(-recheckAfter), now.UTC().Add(-windowBehind), now.UTC().Add(windowAhead))
		q += `  AND (last_eta_check_at IS NULL OR last_eta_check_at < $2)
  AND planned_delivery_date IS NOT NULL
  AND planned_delivery_date BETWEEN $3 AND $4
`
	}
	args = append(args, limit)
	q += fmt.Sprintf("ORDER BY planned_delivery_date ASC NULLS LAST\nLIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// EtaCheckUpdate — результат одной проверки: новые поля shipment
// плюс одна строка аудита. Применяется в одной транзакции.
type EtaCheckUpdate struct {
	ShipmentID uint64
	CheckedAt  time.Time

	TrackingStatus string
	Departed       bool
	UpdatedEta     *time.Time

	VesselFound bool
	VoyageFound bool
	RawPayload  *string
	Error       *string
	Initiator   *string
}

func (s *Storage) ApplyEtaCheck(ctx context.Context, upd EtaCheckUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var sh models.Shipment
	err = tx.QueryRow(ctx, `
UPDATE shipments
SET
  tracking_status = $2,
  departed = $3,
  bot_received_eta_date = COALESCE($4, bot_received_eta_date),
  last_eta_check_at = $5,
  updated_at = now()
WHERE id = $1
RETURNING vessel_name, voyage_code, COALESCE(terminal_code, ''), planned_delivery_date
`, upd.ShipmentID, upd.TrackingStatus, upd.Departed, upd.UpdatedEta, upd.CheckedAt.UTC()).
		Scan(&sh.VesselName, &sh.VoyageCode, &sh.TerminalCode, &sh.PlannedDeliveryDate)
	if err != nil {
		return errors.Wrap(err, "update shipment eta state")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO eta_check_logs (
  shipment_id, terminal_code, vessel_name, voyage_code,
  shipment_eta, updated_eta, tracking_status,
  vessel_found, voyage_found, raw_payload, error, initiator, checked_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, upd.ShipmentID, sh.TerminalCode, sh.VesselName, sh.VoyageCode,
		sh.PlannedDeliveryDate, upd.UpdatedEta, upd.TrackingStatus,
		upd.VesselFound, upd.VoyageFound, upd.RawPayload, upd.Error, upd.Initiator, upd.CheckedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "insert eta check log")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
