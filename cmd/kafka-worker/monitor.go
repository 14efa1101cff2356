package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/models"
)

const (
	recentMax    = 1000
	reportPeriod = 30 * time.Second
)

// EventStore is the Redis surface the monitor writes to
type EventStore interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	PushRecent(ctx context.Context, key string, value interface{}, max int64) error
}

// FlagMonitor keeps running counts of flag events for dashboards
type FlagMonitor struct {
	store       EventStore
	recentKey   string
	countersKey string

	mu          sync.Mutex
	created     int64
	enriched    int64
	byRisk      map[string]int64
	lastEventAt time.Time
}

func NewFlagMonitor(store EventStore, recentKey, countersKey string) *FlagMonitor {
	return &FlagMonitor{
		store:       store,
		recentKey:   recentKey,
		countersKey: countersKey,
		byRisk:      make(map[string]int64),
	}
}

// Handle records a single flag event locally and in Redis. Redis failures
// are logged and do not stop consumption.
func (m *FlagMonitor) Handle(ctx context.Context, event models.FlagEvent) {
	m.record(event)

	for _, field := range counterFields(event) {
		if _, err := m.store.HIncrBy(ctx, m.countersKey, field, 1); err != nil {
			log.Warn().Err(err).Str("field", field).Msg("Failed to increment flag counter")
		}
	}
	if err := m.store.PushRecent(ctx, m.recentKey, event, recentMax); err != nil {
		log.Warn().Err(err).Str("flag_id", event.FlagID).Msg("Failed to store recent flag event")
	}

	switch event.Type {
	case models.FlagEventCreated:
		log.Info().
			Str("flag_id", event.FlagID).
			Str("transaction_id", event.TransactionID).
			Str("rule", event.RuleName).
			Str("risk_level", event.RiskLevel).
			Msg("Flag raised")
	case models.FlagEventEnriched:
		log.Info().
			Str("flag_id", event.FlagID).
			Str("outcome", event.Outcome).
			Str("risk_level", event.RiskLevel).
			Msg("Flag enriched")
	default:
		log.Debug().Str("type", event.Type).Msg("Unknown flag event type")
	}
}

func (m *FlagMonitor) record(event models.FlagEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastEventAt = time.Now()
	switch event.Type {
	case models.FlagEventCreated:
		m.created++
		m.byRisk[event.RiskLevel]++
	case models.FlagEventEnriched:
		m.enriched++
	}
}

// Snapshot is a point-in-time copy of the monitor's counts. ByRiskLevel
// counts raised flags only.
type Snapshot struct {
	Created     int64            `json:"created"`
	Enriched    int64            `json:"enriched"`
	ByRiskLevel map[string]int64 `json:"by_risk_level"`
	LastEventAt time.Time        `json:"last_event_at"`
}

func (m *FlagMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byRisk := make(map[string]int64, len(m.byRisk))
	for k, v := range m.byRisk {
		byRisk[k] = v
	}
	return Snapshot{
		Created:     m.created,
		Enriched:    m.enriched,
		ByRiskLevel: byRisk,
		LastEventAt: m.lastEventAt,
	}
}

func (m *FlagMonitor) report(ctx context.Context) {
	ticker := time.NewTicker(reportPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := m.Snapshot()
			log.Info().
				Int64("created", s.Created).
				Int64("enriched", s.Enriched).
				Interface("by_risk_level", s.ByRiskLevel).
				Time("last_event_at", s.LastEventAt).
				Msg("Flag event totals")
		case <-ctx.Done():
			return
		}
	}
}

func counterFields(event models.FlagEvent) []string {
	fields := []string{"type:" + event.Type}
	if event.RuleName != "" {
		fields = append(fields, "rule:"+event.RuleName)
	}
	if event.RiskLevel != "" {
		fields = append(fields, "risk:"+event.RiskLevel)
	}
	if event.Outcome != "" {
		fields = append(fields, "outcome:"+event.Outcome)
	}
	return fields
}
