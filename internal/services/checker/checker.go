package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shiplog/vesseltrack/internal/broker/messages"
	"github.com/shiplog/vesseltrack/internal/cache/rediscache"
	"github.com/shiplog/vesseltrack/internal/integrations/terminal"
	"github.com/shiplog/vesseltrack/internal/models"
	"github.com/shiplog/vesseltrack/internal/status"
	"github.com/shiplog/vesseltrack/internal/storage/pgeta"
)

type Repository interface {
	SelectDueShipments(ctx context.Context, now time.Time, limit int, force bool) ([]*models.Shipment, error)
	ApplyEtaCheck(ctx context.Context, upd pgeta.EtaCheckUpdate) error
	LastConfirmedSighting(ctx context.Context, shipmentID uint64) (*models.EtaCheckLog, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Progress interface {
	Publish(ctx context.Context, runID string, shipmentID uint64, e rediscache.ProgressEntry) error
}

// Checker гоняет проверки ETA: выбирает due-партии, опрашивает терминалы,
// прогоняет результат через state machine и публикует итоги.
type Checker struct {
	repo     Repository
	terminal terminal.Client
	producer Producer
	rl       RateLimiter
	progress Progress

	topic string

	book *ScheduleBook

	tickInterval       time.Duration
	batchLimit         int
	checkDelay         time.Duration
	rateLimitPerMinute int64

	triggerCh chan RunOptions

	startedAtUnixNano int64
	lastCycleUnixNano atomic.Int64
	totalRuns         atomic.Int64
	totalChecked      atomic.Int64
	totalErrors       atomic.Int64
	inFlight          atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(repo Repository, tc terminal.Client, producer Producer, rl RateLimiter, progress Progress, topic string) *Checker {
	return &Checker{
		repo: repo, terminal: tc, producer: producer, rl: rl, progress: progress, topic: topic,
		book:               NewScheduleBook(nil),
		tickInterval:       time.Minute,
		batchLimit:         50,
		checkDelay:         5 * time.Second,
		rateLimitPerMinute: 30,
		triggerCh:          make(chan RunOptions, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (c *Checker) WithSettings(tick time.Duration, batchLimit int, checkDelay time.Duration, rlPerMin int64) *Checker {
	if tick > 0 {
		c.tickInterval = tick
	}
	if batchLimit > 0 {
		c.batchLimit = batchLimit
	}
	if checkDelay >= 0 {
		c.checkDelay = checkDelay
	}
	if rlPerMin > 0 {
		c.rateLimitPerMinute = rlPerMin
	}
	return c
}

func (c *Checker) WithScheduleBook(book *ScheduleBook) *Checker {
	if book != nil {
		c.book = book
	}
	return c
}

// RunOptions настраивают один прогон. Нулевые значения — дефолты чекера.
type RunOptions struct {
	CorrelationID string
	Limit         int
	Delay         time.Duration
	DelaySet      bool
	Force         bool
	Initiator     *string
}

// RunReport — итог одного прогона. Success считает проверки, чей результат
// записан, включая лукапы с ошибкой — они фиксируются как not_found и это
// валидный исход проверки. Failed — только инфраструктурные сбои (storage,
// kafka), когда результат записать не удалось.
type RunReport struct {
	CorrelationID string        `json:"correlationId"`
	Selected      int           `json:"selected"`
	Success       int           `json:"success"`
	Failed        int           `json:"failed"`
	Took          time.Duration `json:"took"`
}

// Trigger ставит ad-hoc прогон в очередь (best-effort, не блокирует).
// Возвращает correlation id для поллинга прогресса.
func (c *Checker) Trigger(opts RunOptions) string {
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}
	select {
	case c.triggerCh <- opts:
	default:
	}
	return opts.CorrelationID
}

type Stats struct {
	StartedAt    time.Time  `json:"startedAt"`
	LastCycleAt  *time.Time `json:"lastCycleAt,omitempty"`
	TotalRuns    int64      `json:"totalRuns"`
	TotalChecked int64      `json:"totalChecked"`
	TotalErrors  int64      `json:"totalErrors"`
	InFlight     int64      `json:"inFlight"`
	LastError    string     `json:"lastError,omitempty"`
}

func (c *Checker) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, c.startedAtUnixNano).UTC(),
		TotalRuns:    c.totalRuns.Load(),
		TotalChecked: c.totalChecked.Load(),
		TotalErrors:  c.totalErrors.Load(),
		InFlight:     c.inFlight.Load(),
	}
	if n := c.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	c.lastErrorMu.Lock()
	st.LastError = c.lastError
	c.lastErrorMu.Unlock()
	return st
}

// Run — основной цикл: раз в минуту сверяемся с расписаниями проверок,
// плюс внеочередные прогоны через Trigger.
func (c *Checker) Run(ctx context.Context) error {
	t := time.NewTicker(c.tickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			now := time.Now().UTC()
			c.lastCycleUnixNano.Store(now.UnixNano())
			if c.book.Due(now) {
				if _, err := c.RunChecks(ctx, RunOptions{}); err != nil {
					c.recordError(err)
				}
			}
		case opts := <-c.triggerCh:
			if _, err := c.RunChecks(ctx, opts); err != nil {
				c.recordError(err)
			}
		}
	}
}

// RunChecks выполняет один прогон последовательно. Пауза между судами —
// намеренная вежливость к сайтам терминалов, не узкое место для оптимизации.
func (c *Checker) RunChecks(ctx context.Context, opts RunOptions) (RunReport, error) {
	started := time.Now().UTC()
	if opts.CorrelationID == "" {
		opts.CorrelationID = uuid.NewString()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = c.batchLimit
	}
	delay := c.checkDelay
	if opts.DelaySet {
		delay = opts.Delay
	}

	c.totalRuns.Add(1)

	due, err := c.repo.SelectDueShipments(ctx, started, limit, opts.Force)
	if err != nil {
		c.recordError(err)
		return RunReport{CorrelationID: opts.CorrelationID}, errors.Wrap(err, "select due shipments")
	}

	report := RunReport{CorrelationID: opts.CorrelationID, Selected: len(due)}
	for i, sh := range due {
		c.inFlight.Add(1)
		c.publishProgress(ctx, opts.CorrelationID, sh.ID, rediscache.ProgressEntry{
			Status:    rediscache.ProgressChecking,
			CheckedAt: time.Now().UTC(),
		})

		res, err := c.processOne(ctx, sh, opts.Initiator)
		c.inFlight.Add(-1)
		c.totalChecked.Add(1)

		if err != nil {
			report.Failed++
			c.totalErrors.Add(1)
			c.recordError(err)
			slog.Error("eta check", "shipment_id", sh.ID, "error", err.Error())
			c.publishProgress(ctx, opts.CorrelationID, sh.ID, rediscache.ProgressEntry{
				Status:    rediscache.ProgressError,
				Error:     err.Error(),
				CheckedAt: time.Now().UTC(),
			})
		} else {
			report.Success++
			entry := rediscache.ProgressEntry{
				Status:    rediscache.ProgressCompleted,
				Result:    res.Status,
				CheckedAt: time.Now().UTC(),
			}
			if res.UpdatedEta != nil {
				entry.EtaFound = res.UpdatedEta.Format("2006-01-02")
			}
			c.publishProgress(ctx, opts.CorrelationID, sh.ID, entry)
		}

		if delay > 0 && i < len(due)-1 {
			select {
			case <-ctx.Done():
				report.Took = time.Since(started)
				return report, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	report.Took = time.Since(started)
	slog.Info("eta check run finished",
		"correlation_id", opts.CorrelationID,
		"selected", report.Selected, "success", report.Success, "failed", report.Failed,
		"took", report.Took.String())
	return report, nil
}

// processOne проверяет одно судно. Ошибка лукапа — не ошибка прогона:
// фиксируем not_found с текстом ошибки и идём дальше.
func (c *Checker) processOne(ctx context.Context, sh *models.Shipment, initiator *string) (status.Result, error) {
	now := time.Now().UTC()
	terminalCode := ""
	if sh.TerminalCode != nil {
		terminalCode = *sh.TerminalCode
	}

	if c.rl != nil && c.rateLimitPerMinute > 0 {
		key := rediscache.TerminalMinuteKey(terminalCode, now)
		allowed, n, err := c.rl.Allow(ctx, key, c.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			return status.Result{}, err
		}
		if !allowed {
			// Терминал и так под нагрузкой — притормозим.
			slog.Warn("terminal rate limit exceeded", "terminal", terminalCode, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	upd := pgeta.EtaCheckUpdate{
		ShipmentID: sh.ID,
		CheckedAt:  now,
		Initiator:  initiator,
	}

	lookup, lookupErr := c.terminal.Lookup(ctx, sh.VesselFullName(), terminalCode)

	var res status.Result
	if lookupErr != nil {
		e := lookupErr.Error()
		res = status.Result{Status: models.TrackingStatusNotFound}
		upd.Error = &e
	} else {
		in := status.Input{
			VesselFound:     lookup.VesselFound,
			VoyageFound:     lookup.VoyageFound,
			Eta:             lookup.Eta,
			PlannedDelivery: sh.PlannedDeliveryDate,
		}
		if !(lookup.VesselFound && lookup.VoyageFound) {
			prior, err := c.repo.LastConfirmedSighting(ctx, sh.ID)
			if err != nil {
				return status.Result{}, err
			}
			in.Prior = prior
		}
		res = status.Evaluate(in)

		if lookup.Raw != "" {
			upd.RawPayload = &lookup.Raw
		}
		upd.VesselFound = lookup.VesselFound
		upd.VoyageFound = lookup.VoyageFound
	}

	upd.TrackingStatus = res.Status
	upd.Departed = res.Departed
	upd.UpdatedEta = res.UpdatedEta

	if err := c.repo.ApplyEtaCheck(ctx, upd); err != nil {
		return status.Result{}, err
	}

	msg := messages.EtaChecked{
		ShipmentID:     sh.ID,
		TerminalCode:   terminalCode,
		VesselName:     sh.VesselName,
		VoyageCode:     sh.VoyageCode,
		CheckedAt:      now,
		TrackingStatus: res.Status,
		Departed:       res.Departed,
		UpdatedEta:     res.UpdatedEta,
		VesselFound:    upd.VesselFound,
		VoyageFound:    upd.VoyageFound,
		Error:          upd.Error,
		Initiator:      initiator,
	}
	if err := c.publish(ctx, sh.ID, msg); err != nil {
		return status.Result{}, err
	}
	return res, nil
}

func (c *Checker) publish(ctx context.Context, shipmentID uint64, msg messages.EtaChecked) error {
	if c.producer == nil {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal eta.checked")
	}

	key := []byte(fmt.Sprintf("%d", shipmentID))
	// Kafka может быть не готова сразу после старта, даём небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if pubErr = c.producer.Publish(ctx, c.topic, key, b); pubErr == nil {
			return nil
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}
	return pubErr
}

func (c *Checker) publishProgress(ctx context.Context, runID string, shipmentID uint64, e rediscache.ProgressEntry) {
	if c.progress == nil {
		return
	}
	if err := c.progress.Publish(ctx, runID, shipmentID, e); err != nil {
		slog.Warn("publish progress", "run_id", runID, "error", err.Error())
	}
}

func (c *Checker) recordError(err error) {
	c.lastErrorMu.Lock()
	c.lastError = err.Error()
	c.lastErrorMu.Unlock()
}
