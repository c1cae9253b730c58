package authcore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tunehub/authcore/cookie"
	"github.com/tunehub/authcore/internal/audit"
	"github.com/tunehub/authcore/jwt"
	"github.com/tunehub/authcore/session"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config     Config
	users      UserStore
	sessions   SessionRepository
	logger     *zap.Logger
	registerer prometheus.Registerer
	auditSink  AuditSink
	throttle   LoginThrottle
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithSessionRepository(repo SessionRepository) *Builder {
	b.sessions = repo
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics registers engine metrics on reg. Without it, or with
// Config.Metrics.Enabled false, nothing is recorded.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for token and cookie timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithLoginThrottle limits failed logins per username and IP.
func (b *Builder) WithLoginThrottle(t LoginThrottle) *Builder {
	b.throttle = t
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, ErrMissingUserStore
	}
	if b.sessions == nil {
		return nil, ErrMissingSessionRepository
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Key:       []byte(cfg.JWT.Key),
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		AccessTTL: cfg.JWT.AccessTTL,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
		users:  b.users,
		tokens: tokens,
		sessions: session.NewStore(b.sessions,
			session.WithLogger(logger.Named("session")),
			session.WithClock(now),
		),
		cookies:  cookie.NewTransport(cfg.Cookie, logger.Named("cookie")).WithClock(now),
		logger:   logger,
		throttle: b.throttle,
	}

	if cfg.Metrics.Enabled && b.registerer != nil {
		engine.metrics = NewMetrics(cfg.Metrics.Namespace, b.registerer)
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}
	engine.audit = audit.NewDispatcher(cfg.Audit.dispatcherConfig(), sink,
		audit.WithLogger(logger.Named("audit")),
		audit.WithClock(now),
	)

	b.built = true
	return engine, nil
}
