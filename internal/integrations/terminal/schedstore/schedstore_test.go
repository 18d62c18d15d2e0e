package schedstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shiplog/vesseltrack/internal/models"
)

type fakeFinder struct {
	byKey map[string]*models.VesselScheduleSnapshot // "name|voyage"
	calls int
}

func (f *fakeFinder) FindSnapshot(ctx context.Context, vesselName string, terminalCode, voyageCode *string, now time.Time) (*models.VesselScheduleSnapshot, error) {
	f.calls++
	voyage := ""
	if voyageCode != nil {
		voyage = *voyageCode
	}
	if snap, ok := f.byKey[vesselName+"|"+voyage]; ok {
		return snap, nil
	}
	// Поиск без рейса находит любой снапшот с этим именем.
	if voyage == "" {
		for k, snap := range f.byKey {
			if len(k) > len(vesselName) && k[:len(vesselName)+1] == vesselName+"|" {
				return snap, nil
			}
		}
	}
	return nil, nil
}

type memCache struct {
	m map[string][]byte
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func strPtr(s string) *string { return &s }

func snapshot(name, voyage string, eta time.Time) *models.VesselScheduleSnapshot {
	return &models.VesselScheduleSnapshot{
		VesselName:   name,
		VoyageCode:   strPtr(voyage),
		TerminalCode: "LCB1",
		Eta:          &eta,
		Source:       "LCB1",
	}
}

func TestAdapter_LookupExactVoyageMatch(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{
		"ATLANTIC STAR|112S": snapshot("ATLANTIC STAR", "112S", eta),
	}}
	a := New(f, nil, 0)

	res, err := a.Lookup(context.Background(), "ATLANTIC STAR 112S", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.True(t, res.VoyageFound)
	require.NotNil(t, res.Eta)
	require.Equal(t, "2025-06-11T00:00:00Z", *res.Eta)
}

func TestAdapter_LookupNameOnlyFallback(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{
		"ATLANTIC STAR|112S": snapshot("ATLANTIC STAR", "112S", eta),
	}}
	a := New(f, nil, 0)

	// Рейс в запросе не совпадает с ключом, но имя находится; voyage
	// подтверждаем по вхождению кода снапшота в полное имя.
	res, err := a.Lookup(context.Background(), "ATLANTIC STAR 113N", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.False(t, res.VoyageFound)
}

func TestAdapter_LookupSnapshotScrapedWithoutVoyage(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{
		"ATLANTIC STAR|": snapshot("ATLANTIC STAR", "", eta),
	}}
	a := New(f, nil, 0)

	// Скрейпер не отдал рейс — снапшот лежит под голым именем. Запрос с
	// рейсом всё равно должен найти судно, рейс подтверждаем за неимением
	// чего сверять.
	res, err := a.Lookup(context.Background(), "ATLANTIC STAR 113N", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.True(t, res.VoyageFound)
	require.NotNil(t, res.Eta)
	require.Equal(t, "2025-06-11T00:00:00Z", *res.Eta)
}

func TestAdapter_LookupMultiwordNameWithoutVoyage(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{
		"ATLANTIC STAR|112S": snapshot("ATLANTIC STAR", "112S", eta),
	}}
	a := New(f, nil, 0)

	// Запрос без рейса: последнее слово имени принимается за рейс и первые
	// два захода мимо, находим по всей строке целиком.
	res, err := a.Lookup(context.Background(), "ATLANTIC STAR", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.False(t, res.VoyageFound)
}

func TestAdapter_LookupMiss(t *testing.T) {
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{}}
	a := New(f, nil, 0)

	res, err := a.Lookup(context.Background(), "GHOST SHIP", "LCB1")
	require.NoError(t, err)
	require.False(t, res.VesselFound)
	require.Nil(t, res.Eta)
}

func TestAdapter_LookupUsesCache(t *testing.T) {
	eta := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	f := &fakeFinder{byKey: map[string]*models.VesselScheduleSnapshot{
		"ATLANTIC STAR|112S": snapshot("ATLANTIC STAR", "112S", eta),
	}}
	c := &memCache{m: map[string][]byte{}}
	a := New(f, c, time.Minute)

	_, err := a.Lookup(context.Background(), "ATLANTIC STAR 112S", "LCB1")
	require.NoError(t, err)
	callsAfterFirst := f.calls

	res, err := a.Lookup(context.Background(), "ATLANTIC STAR 112S", "LCB1")
	require.NoError(t, err)
	require.True(t, res.VesselFound)
	require.Equal(t, callsAfterFirst, f.calls) // второй раз в стор не ходили
}
