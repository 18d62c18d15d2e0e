package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shiplog/vesseltrack/internal/dateparse"
	"github.com/shiplog/vesseltrack/internal/models"
)

// freshnessHorizon: сколько живёт снапшот после скрейпа.
const freshnessHorizon = 48 * time.Hour

type Repository interface {
	UpsertSnapshot(ctx context.Context, snap *models.VesselScheduleSnapshot) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Source is one terminal scraper: an external collaborator that returns raw
// schedule rows for its terminal.
type Source interface {
	TerminalCode() string
	Scrape(ctx context.Context) ([]models.ScrapedVessel, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) withNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest нормализует строки скрейпера и апсертит их в кэш расписаний.
// Мусорные строки (пустое имя, нет ETA, ETA в прошлом) молча пропускаются —
// скрейперы шумные, это не ошибка. Возвращает число сохранённых записей.
func (s *Service) Ingest(ctx context.Context, terminalCode string, rows []models.ScrapedVessel) (int, error) {
	now := s.now()
	stored := 0

	for _, row := range rows {
		name := strings.ToUpper(strings.TrimSpace(row.Name))
		if name == "" {
			continue
		}

		eta, ok := dateparse.Parse(row.Eta)
		if !ok || eta.Before(now) {
			continue
		}

		snap := &models.VesselScheduleSnapshot{
			VesselName:   name,
			TerminalCode: terminalCode,
			Eta:          &eta,
			Source:       terminalCode,
			ScrapedAt:    now,
			ExpiresAt:    now.Add(freshnessHorizon),
		}
		if v := strings.TrimSpace(row.Voyage); v != "" {
			snap.VoyageCode = &v
		}
		if b := strings.TrimSpace(row.Berth); b != "" {
			snap.Berth = &b
		}
		if etd, ok := dateparse.Parse(row.Etd); ok {
			snap.Etd = &etd
		}
		if raw, err := json.Marshal(row); err == nil {
			p := string(raw)
			snap.RawPayload = &p
		}

		if err := s.repo.UpsertSnapshot(ctx, snap); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}

// RunCycle — суточный цикл: сначала убираем протухшее, потом опрашиваем
// каждый источник. Падение одного скрейпера не роняет цикл.
func (s *Service) RunCycle(ctx context.Context, sources []Source) {
	now := s.now()
	if deleted, err := s.repo.SweepExpired(ctx, now); err != nil {
		slog.Error("sweep expired snapshots", "error", err.Error())
	} else if deleted > 0 {
		slog.Info("swept expired snapshots", "deleted", deleted)
	}

	for _, src := range sources {
		rows, err := src.Scrape(ctx)
		if err != nil {
			slog.Error("scrape terminal", "terminal", src.TerminalCode(), "error", err.Error())
			continue
		}
		stored, err := s.Ingest(ctx, src.TerminalCode(), rows)
		if err != nil {
			slog.Error("ingest terminal", "terminal", src.TerminalCode(), "error", err.Error())
			continue
		}
		slog.Info("ingested terminal schedule", "terminal", src.TerminalCode(), "scraped", len(rows), "stored", stored)
	}
}
