// Package dashboard derives KPIs and trend series from the other stores.
package dashboard

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/liamcoop/recon/internal/connectors"
	"github.com/liamcoop/recon/internal/exceptions"
	"github.com/liamcoop/recon/rules"
)

const dayLayout = "2006-01-02"

// MaxTrendDays bounds the trend window.
const MaxTrendDays = 90

type ExceptionSource interface {
	All() ([]*exceptions.Exception, error)
}

type RuleSource interface {
	ListActive() ([]*rules.RuleDefinition, error)
}

type ConnectorSource interface {
	List(t connectors.Type, status connectors.Status) []*connectors.Connector
}

// KPIs is the dashboard headline.
type KPIs struct {
	MatchRate        float64        `json:"matchRate"`
	RecordsProcessed int64          `json:"recordsProcessed"`
	MatchedRecords   int64          `json:"matchedRecords"`
	OpenExceptions   int            `json:"openExceptions"`
	ExceptionsByType map[string]int `json:"exceptionsByType"`
	ResolvedToday    int            `json:"resolvedToday"`
	ActiveRules      int            `json:"activeRules"`
	ConnectedSources int            `json:"connectedSources"`
	TotalSources     int            `json:"totalSources"`
	GeneratedAt      time.Time      `json:"generatedAt"`
}

// TrendPoint is one day of matching activity.
type TrendPoint struct {
	Date      string  `json:"date"`
	Matched   int64   `json:"matched"`
	Unmatched int64   `json:"unmatched"`
	MatchRate float64 `json:"matchRate"`
}

type dayCounts struct {
	matched, unmatched int64
}

// Service aggregates dashboard data. Run results are added to the daily
// trend as they complete.
type Service struct {
	exceptions ExceptionSource
	rules      RuleSource
	connectors ConnectorSource

	mu     sync.RWMutex
	days   map[string]*dayCounts
	now    func() time.Time
	logger *slog.Logger
}

func NewService(ex ExceptionSource, rs RuleSource, cs ConnectorSource) *Service {
	return &Service{
		exceptions: ex,
		rules:      rs,
		connectors: cs,
		days:       make(map[string]*dayCounts),
		now:        time.Now,
		logger:     slog.Default().With("component", "dashboard"),
	}
}

// RuleRunCompleted implements rules.RunObserver.
func (s *Service) RuleRunCompleted(_ context.Context, _ *rules.RuleDefinition, result *rules.BatchRunResult) {
	at := result.StartedAt
	if at.IsZero() {
		at = s.now()
	}
	s.Add(at, int64(result.PassedRecords), int64(result.FailedRecords))
}

// Add counts matched and unmatched records on the day of at.
func (s *Service) Add(at time.Time, matched, unmatched int64) {
	key := at.Format(dayLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[key]
	if !ok {
		d = &dayCounts{}
		s.days[key] = d
	}
	d.matched += matched
	d.unmatched += unmatched
}

// KPIs computes the headline figures. The match rate covers the trend window.
func (s *Service) KPIs() (*KPIs, error) {
	now := s.now()
	k := &KPIs{ExceptionsByType: make(map[string]int), GeneratedAt: now}

	var unmatched int64
	for _, p := range s.Trends(MaxTrendDays) {
		k.MatchedRecords += p.Matched
		unmatched += p.Unmatched
	}
	k.RecordsProcessed = k.MatchedRecords + unmatched
	k.MatchRate = rate(k.MatchedRecords, k.RecordsProcessed)

	all, err := s.exceptions.All()
	if err != nil {
		return nil, err
	}
	today := now.Format(dayLayout)
	for _, e := range all {
		if !e.Status.Terminal() {
			k.ExceptionsByType[string(e.Type)]++
			if e.Status == exceptions.StatusOpen {
				k.OpenExceptions++
			}
			continue
		}
		if e.Status == exceptions.StatusResolved && e.ResolvedAt != nil && e.ResolvedAt.In(now.Location()).Format(dayLayout) == today {
			k.ResolvedToday++
		}
	}

	active, err := s.rules.ListActive()
	if err != nil {
		return nil, err
	}
	k.ActiveRules = len(active)

	sources := s.connectors.List("", "")
	k.TotalSources = len(sources)
	for _, c := range sources {
		if c.Status == connectors.StatusConnected || c.Status == connectors.StatusSyncing {
			k.ConnectedSources++
		}
	}
	return k, nil
}

// Trends returns one point per day for the last days days, oldest first.
// Days without activity are zero.
func (s *Service) Trends(days int) []TrendPoint {
	if days <= 0 {
		days = 7
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}

	now := s.now()
	out := make([]TrendPoint, 0, days)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := days - 1; i >= 0; i-- {
		key := now.AddDate(0, 0, -i).Format(dayLayout)
		p := TrendPoint{Date: key}
		if d, ok := s.days[key]; ok {
			p.Matched, p.Unmatched = d.matched, d.unmatched
		}
		p.MatchRate = rate(p.Matched, p.Matched+p.Unmatched)
		out = append(out, p)
	}
	return out
}

// rate is matched/total as a percentage with one decimal.
func rate(matched, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(total)*1000) / 10
}

// SeedDemo fills the last two weeks with plausible activity.
func (s *Service) SeedDemo() {
	now := s.now()
	for i := 1; i <= 14; i++ {
		day := now.AddDate(0, 0, -i)
		total := int64(1800 + (i*373)%900)
		unmatched := int64(20 + (i*97)%80)
		s.Add(day, total-unmatched, unmatched)
	}
	s.logger.Debug("dashboard trends seeded", "days", 14)
}
