package checker

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ScheduleConfig — одна строка конфига: время суток "HH:MM" плюс
// необязательная маска дней недели.
type ScheduleConfig struct {
	At     string   `yaml:"at"`
	Days   []string `yaml:"days,omitempty"`
	Active bool     `yaml:"active"`
}

// matchWindow: расписание срабатывает в пределах ±1 минуты от своего времени.
const matchWindow = time.Minute

type checkSchedule struct {
	hour, minute int
	days         map[time.Weekday]bool
	active       bool
	lastRunDay   string // "2006-01-02", защёлка "уже бегали сегодня"
}

// ScheduleBook держит расписания проверок и решает, пора ли запускаться.
// Кривое расписание отключает только себя, не весь планировщик.
type ScheduleBook struct {
	mu        sync.Mutex
	schedules []*checkSchedule
}

func NewScheduleBook(cfgs []ScheduleConfig) *ScheduleBook {
	b := &ScheduleBook{}
	for _, cfg := range cfgs {
		s, err := parseSchedule(cfg)
		if err != nil {
			slog.Error("invalid check schedule, disabled", "at", cfg.At, "error", err.Error())
			continue
		}
		b.schedules = append(b.schedules, s)
	}
	return b
}

func parseSchedule(cfg ScheduleConfig) (*checkSchedule, error) {
	at, err := time.Parse("15:04", strings.TrimSpace(cfg.At))
	if err != nil {
		return nil, errors.Wrap(err, "parse schedule time")
	}

	s := &checkSchedule{
		hour:   at.Hour(),
		minute: at.Minute(),
		active: cfg.Active,
	}
	if len(cfg.Days) > 0 {
		s.days = make(map[time.Weekday]bool, len(cfg.Days))
		for _, d := range cfg.Days {
			wd, ok := parseWeekday(d)
			if !ok {
				return nil, errors.Errorf("unknown weekday %q", d)
			}
			s.days[wd] = true
		}
	}
	return s, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) > 3 {
		s = s[:3]
	}
	wd, ok := weekdays[s]
	return wd, ok
}

// Due возвращает true, если хоть одно расписание должно сработать сейчас,
// и защёлкивает его на сегодня.
func (b *ScheduleBook) Due(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	due := false
	today := now.Format("2006-01-02")
	for _, s := range b.schedules {
		if !s.active || s.lastRunDay == today {
			continue
		}
		if s.days != nil && !s.days[now.Weekday()] {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, now.Location())
		d := now.Sub(at)
		if d < -matchWindow || d > matchWindow {
			continue
		}
		s.lastRunDay = today
		due = true
	}
	return due
}
