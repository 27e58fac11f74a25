package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"adpulse/internal/tracking/device"
	"adpulse/internal/tracking/metrics"
	"adpulse/internal/tracking/models"
	"adpulse/pkg/platform/privacy"
)

// DefaultStoreTimeout bounds the session upsert when the caller has no deadline.
const DefaultStoreTimeout = 5 * time.Second

// Store persists sessions with insert-if-absent semantics.
type Store interface {
	// CreateIfAbsent inserts s unless a session with the same ID exists and
	// reports whether it inserted.
	CreateIfAbsent(ctx context.Context, s *models.Session) (bool, error)
}

// Resolver attributes events to sessions. Resolution never fails: lookup or
// persistence problems are logged and the session id is still returned.
type Resolver struct {
	store   Store
	devices *device.Service
	geo     GeoLookup
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string
	timeout time.Duration
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithGeoLookup(geo GeoLookup) Option {
	return func(r *Resolver) {
		if geo != nil {
			r.geo = geo
		}
	}
}

// WithStoreTimeout bounds the session upsert. A timeout counts as a store
// failure and the session is still returned.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithIDGenerator replaces the random session id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Resolver) {
		if gen != nil {
			r.newID = gen
		}
	}
}

func NewResolver(store Store, devices *device.Service, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if devices == nil {
		return nil, errors.New("device service is required")
	}
	r := &Resolver{
		store:   store,
		devices: devices,
		geo:     NoopGeoLookup{},
		logger:  slog.New(slog.DiscardHandler),
		newID:   uuid.NewString,
		timeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve picks the session id (supplied, then the X-Session-ID header, then
// a fresh random id), enriches it from the request and records it once.
func (r *Resolver) Resolve(ctx context.Context, client models.ClientInfo, supplied string) *models.Session {
	id := strings.TrimSpace(supplied)
	if id == "" {
		id = strings.TrimSpace(client.SessionHeader)
	}
	if id == "" {
		id = r.newID()
	}

	profile := r.devices.Describe(client.UserAgent)
	sess := &models.Session{
		ID:          id,
		Fingerprint: r.devices.ComputeFingerprint(client.UserAgent, client.IP),
		IP:          client.IP,
		DeviceType:  profile.Type,
		Browser:     profile.Browser,
		OS:          profile.OS,
		CreatedAt:   client.ReceivedAt.UTC(),
	}

	country, err := r.geo.Country(ctx, client.IP, client.CountryHint)
	if err != nil {
		r.logger.WarnContext(ctx, "geo lookup failed",
			"error", err,
			"ip_prefix", privacy.AnonymizeIP(client.IP),
		)
	}
	sess.Country = country

	created, err := r.persist(ctx, sess)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to persist session",
			"error", err,
			"session_id", id,
		)
		if r.metrics != nil {
			r.metrics.IncrementSessionStoreErrors()
		}
		return sess
	}
	if created && r.metrics != nil {
		r.metrics.IncrementSessionsCreated()
	}
	return sess
}

func (r *Resolver) persist(ctx context.Context, sess *models.Session) (bool, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.store.CreateIfAbsent(ctx, sess)
}
