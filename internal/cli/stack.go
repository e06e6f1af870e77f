package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quiz-runner/internal/app"
	"quiz-runner/internal/config"
	"quiz-runner/internal/events"
	"quiz-runner/internal/infra/httpsource"
	"quiz-runner/internal/infra/memory"
	pgloader "quiz-runner/internal/infra/postgres"
	infraredis "quiz-runner/internal/infra/redis"
	"quiz-runner/internal/infra/sheet"
	"quiz-runner/internal/validation"
)

// stack holds the wired components shared by the start and play commands.
type stack struct {
	service *app.QuizService
	quizzes app.QuizRepository
	// catalog is set when quizzes come from the built-in set.
	catalog *memory.StaticQuizLoader
	pubsub  *gochannel.GoChannel
	topic   string
	// sessionTTL bounds how long an untouched session is kept.
	sessionTTL time.Duration
	logger     *slog.Logger
	closers    []func() error
}

// Close releases resources in reverse order of acquisition. Failures are
// logged and do not stop the remaining closers.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("release resource failed", "error", err)
		}
	}
}

// sweepInterval is how often idle sessions are looked for.
func (s *stack) sweepInterval() time.Duration {
	interval := s.sessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func buildStack(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &stack{
		topic:      cfg.Events.Topic,
		sessionTTL: cfg.SessionTTL(app.DefaultSessionTTL),
		logger:     logger,
	}
	if s.topic == "" {
		s.topic = events.DefaultTopic
	}

	loader, err := s.quizLoader(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var store app.SessionRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, client.Close)
		s.quizzes = infraredis.NewQuizRepository(client, loader, quizTTL, logger)
		store = infraredis.NewSessionStore(client, s.sessionTTL)
	} else {
		s.quizzes = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	s.pubsub = events.NewGoChannel(logger)
	s.closers = append(s.closers, s.pubsub.Close)
	sink := events.Fanout{events.NewPublisher(s.pubsub, s.topic, logger)}
	if len(cfg.Events.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Events.Brokers, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, kafkaPublisher.Close)
		sink = append(sink, events.NewPublisher(kafkaPublisher, s.topic, logger))
	}

	s.service = app.NewQuizService(store, s.quizzes,
		app.WithRules(rulesFromConfig(cfg)),
		app.WithValidator(validation.New()),
		app.WithEventSink(sink),
		app.WithSessionTTL(s.sessionTTL),
		app.WithLogger(logger))
	return s, nil
}

func (s *stack) quizLoader(ctx context.Context, cfg config.Config) (app.QuizLoader, error) {
	switch source := cfg.QuizSource(); source {
	case config.SourceStatic:
		s.catalog = memory.NewStaticQuizLoader(sampleQuizzes())
		return s.catalog, nil
	case config.SourcePostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("quiz source %q needs postgres.url", source)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		return pgloader.NewQuizLoader(pool), nil
	case config.SourceHTTP:
		if cfg.Quiz.URL == "" {
			return nil, fmt.Errorf("quiz source %q needs quiz.url", source)
		}
		return httpsource.NewQuizLoader(cfg.Quiz.URL, nil), nil
	case config.SourceSheet:
		if cfg.Quiz.Dir == "" {
			return nil, fmt.Errorf("quiz source %q needs quiz.dir", source)
		}
		return sheet.NewQuizLoader(cfg.Quiz.Dir), nil
	default:
		return nil, fmt.Errorf("unknown quiz source %q", source)
	}
}

func rulesFromConfig(cfg config.Config) app.Rules {
	r := cfg.Rules
	return app.Rules{
		TimeLimit:       r.TimeLimit,
		BasePoints:      r.BasePoints,
		StreakThreshold: r.StreakThreshold,
		StreakBonus:     r.StreakBonus,
		ExtraTimeBonus:  r.ExtraTimeBonus,
		PowerUpUses:     r.PowerUpUses,
		RevealDelay:     config.TTLDuration(r.RevealDelay, app.DefaultRevealDelay),
		TickInterval:    config.TTLDuration(r.TickInterval, app.DefaultTickInterval),
	}.WithDefaults()
}
