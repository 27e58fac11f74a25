// Package optimization reacts to revenue-bearing events. The Tracker keeps
// per-slot revenue and suggests a higher floor price for slots earning well
// below the market reference.
package optimization

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"adpulse/internal/tracking/models"
)

const (
	ActionIncreaseFloor = "increase_floor_price"
	DefaultMinEvents    = 10
)

var (
	thousand       = decimal.NewFromInt(1000)
	underpriced    = decimal.RequireFromString("0.8")
	suggestedRatio = decimal.RequireFromString("0.9")
	expectedUplift = decimal.RequireFromString("0.12")
)

// Noop ignores every event.
type Noop struct{}

func (Noop) OnRevenue(context.Context, models.TrackingEvent) error { return nil }

// Recommendation is a pricing suggestion for one slot.
type Recommendation struct {
	Slot           string          `json:"slot"`
	Action         string          `json:"action"`
	CurrentCPM     decimal.Decimal `json:"currentCpm"`
	SuggestedFloor decimal.Decimal `json:"suggestedFloor"`
	ExpectedUplift decimal.Decimal `json:"expectedUplift"`
}

type slotStats struct {
	revenue decimal.Decimal
	events  int64
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu              sync.Mutex
	slots           map[string]*slotStats
	total           decimal.Decimal
	recommendations map[string]Recommendation
	referenceCPM    decimal.Decimal
	minEvents       int64
	logger          *slog.Logger
	metrics         *Metrics
}

type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithMinEvents(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.minEvents = int64(n)
		}
	}
}

// NewTracker compares slot CPMs against referenceCPM.
func NewTracker(referenceCPM decimal.Decimal, opts ...Option) (*Tracker, error) {
	if !referenceCPM.IsPositive() {
		return nil, errors.New("reference CPM must be positive")
	}
	t := &Tracker{
		slots:           make(map[string]*slotStats),
		recommendations: make(map[string]Recommendation),
		referenceCPM:    referenceCPM,
		minEvents:       DefaultMinEvents,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// OnRevenue records the event's revenue against its slot and re-evaluates
// the slot's pricing.
func (t *Tracker) OnRevenue(ctx context.Context, event models.TrackingEvent) error {
	if !event.Revenue.IsPositive() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	stats, ok := t.slots[event.Slot]
	if !ok {
		stats = &slotStats{}
		t.slots[event.Slot] = stats
	}
	stats.revenue = stats.revenue.Add(event.Revenue)
	stats.events++
	t.total = t.total.Add(event.Revenue)
	total := t.total

	rec, changed := t.evaluateLocked(event.Slot, stats)
	count := len(t.recommendations)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.SetRevenueTotal(total)
		t.metrics.SetRecommendations(count)
	}
	if changed && rec != nil {
		t.logger.InfoContext(ctx, "floor price increase recommended",
			"slot", rec.Slot,
			"current_cpm", rec.CurrentCPM.StringFixed(2),
			"suggested_floor", rec.SuggestedFloor.StringFixed(2),
		)
	}
	return nil
}

// evaluateLocked updates the slot's recommendation and reports whether a new
// one was issued.
func (t *Tracker) evaluateLocked(slot string, stats *slotStats) (*Recommendation, bool) {
	if stats.events < t.minEvents {
		return nil, false
	}
	cpm := stats.revenue.Div(decimal.NewFromInt(stats.events)).Mul(thousand)
	if !cpm.LessThan(t.referenceCPM.Mul(underpriced)) {
		delete(t.recommendations, slot)
		return nil, false
	}
	_, existed := t.recommendations[slot]
	rec := Recommendation{
		Slot:           slot,
		Action:         ActionIncreaseFloor,
		CurrentCPM:     cpm,
		SuggestedFloor: t.referenceCPM.Mul(suggestedRatio),
		ExpectedUplift: expectedUplift,
	}
	t.recommendations[slot] = rec
	return &rec, !existed
}

// Recommendations returns the open recommendations sorted by slot.
func (t *Tracker) Recommendations() []Recommendation {
	t.mu.Lock()
	out := make([]Recommendation, 0, len(t.recommendations))
	for _, rec := range t.recommendations {
		out = append(out, rec)
	}
	t.mu.Unlock()
	slices.SortFunc(out, func(a, b Recommendation) int {
		return strings.Compare(a.Slot, b.Slot)
	})
	return out
}

// TotalRevenue returns the revenue seen across all slots.
func (t *Tracker) TotalRevenue() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Metrics exports the tracker state.
type Metrics struct {
	RevenueTotal    prometheus.Gauge
	Recommendations prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RevenueTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "revenue_total_usd",
			Help: "Revenue reported by tracked events since start",
		}),
		Recommendations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "adpulse_floor_recommendations",
			Help: "Slots with an open floor price recommendation",
		}),
	}
}

func (m *Metrics) SetRevenueTotal(total decimal.Decimal) {
	m.RevenueTotal.Set(total.InexactFloat64())
}

func (m *Metrics) SetRecommendations(n int) {
	m.Recommendations.Set(float64(n))
}
