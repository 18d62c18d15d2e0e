package schedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shiplog/vesseltrack/internal/integrations/terminal"
	"github.com/shiplog/vesseltrack/internal/models"
)

type SnapshotFinder interface {
	FindSnapshot(ctx context.Context, vesselName string, terminalCode, voyageCode *string, now time.Time) (*models.VesselScheduleSnapshot, error)
}

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Adapter отвечает на лукап из кэша расписаний вместо похода на сайт
// терминала. Для терминалов, которые скрейпятся по расписанию, этого
// достаточно и это на порядки дешевле.
type Adapter struct {
	store    SnapshotFinder
	cache    BytesCache
	cacheTTL time.Duration
	now      func() time.Time
}

func New(store SnapshotFinder, cache BytesCache, cacheTTL time.Duration) *Adapter {
	return &Adapter{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Adapter) Lookup(ctx context.Context, vesselFullName, terminalCode string) (terminal.Result, error) {
	key := fmt.Sprintf("lookup:%s:%s", terminalCode, vesselFullName)
	if a.cache != nil && a.cacheTTL > 0 {
		if b, ok, err := a.cache.Get(ctx, key); err == nil && ok {
			var res terminal.Result
			if json.Unmarshal(b, &res) == nil {
				return res, nil
			}
		}
	}

	res, err := a.lookup(ctx, vesselFullName, terminalCode)
	if err != nil {
		return terminal.Result{}, err
	}

	if a.cache != nil && a.cacheTTL > 0 {
		if b, err := json.Marshal(res); err == nil {
			_ = a.cache.Set(ctx, key, b, a.cacheTTL)
		}
	}
	return res, nil
}

func (a *Adapter) lookup(ctx context.Context, vesselFullName, terminalCode string) (terminal.Result, error) {
	now := a.now()
	full := strings.ToUpper(strings.TrimSpace(vesselFullName))

	// Полное имя — это "ИМЯ РЕЙС". Сначала точное совпадение по ключу,
	// потом голое имя без фильтра по рейсу (скрейпер мог не отдать рейс),
	// и напоследок вся строка целиком — многословное имя без рейса режется
	// на первых двух шагах неправильно.
	name := full
	var voyageAsked string
	if i := strings.LastIndex(full, " "); i > 0 {
		name, voyageAsked = full[:i], full[i+1:]
	}

	var snap *models.VesselScheduleSnapshot
	var voyageMatched bool
	if voyageAsked != "" {
		found, err := a.store.FindSnapshot(ctx, name, &terminalCode, &voyageAsked, now)
		if err != nil {
			return terminal.Result{}, err
		}
		if found != nil {
			snap = found
			voyageMatched = true
		}
	}
	if snap == nil {
		found, err := a.store.FindSnapshot(ctx, name, &terminalCode, nil, now)
		if err != nil {
			return terminal.Result{}, err
		}
		snap = found
	}
	if snap == nil && name != full {
		found, err := a.store.FindSnapshot(ctx, full, &terminalCode, nil, now)
		if err != nil {
			return terminal.Result{}, err
		}
		snap = found
	}
	if snap == nil {
		return terminal.Result{Raw: "schedule store: no fresh snapshot"}, nil
	}

	res := terminal.Result{VesselFound: true}
	switch {
	case voyageMatched:
		res.VoyageFound = true
	case snap.VoyageCode != nil && *snap.VoyageCode != "":
		res.VoyageFound = strings.Contains(full, *snap.VoyageCode)
	default:
		// Рейс в снапшоте не указан — подтверждать нечего, считаем совпадением.
		res.VoyageFound = true
	}

	if snap.Eta != nil {
		eta := snap.Eta.UTC().Format(time.RFC3339)
		res.Eta = &eta
	}
	if b, err := json.Marshal(snap); err == nil {
		res.Raw = string(b)
	}
	return res, nil
}
