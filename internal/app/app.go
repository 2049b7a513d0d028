// Package app wires the automation engine and its storage, AI and
// notification dependencies from configuration. Both the HTTP server and the
// standalone timer worker build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/leadflow/internal/actions"
	"github.com/ignite/leadflow/internal/ai"
	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/config"
	"github.com/ignite/leadflow/internal/domain"
	"github.com/ignite/leadflow/internal/inbound"
	"github.com/ignite/leadflow/internal/ingest"
	"github.com/ignite/leadflow/internal/notify"
	"github.com/ignite/leadflow/internal/pkg/awsutil"
	"github.com/ignite/leadflow/internal/pkg/distlock"
	"github.com/ignite/leadflow/internal/pkg/httpretry"
	"github.com/ignite/leadflow/internal/pkg/logger"
	"github.com/ignite/leadflow/internal/repository/postgres"
	"github.com/ignite/leadflow/internal/service/rules"
)

// ErrNoDatabase is returned when no database URL is configured.
var ErrNoDatabase = errors.New("DATABASE_URL is required")

// App holds the shared runtime dependencies.
type App struct {
	Config      *config.Config
	DB          *sql.DB
	Redis       *redis.Client // nil when Redis is not configured
	AWS         *aws.Config   // nil when no AWS-backed feature is enabled
	Leads       *postgres.LeadRepo
	Enrollments *postgres.EnrollmentRepo
	Rules       *rules.Service
	Resolver    *automation.Resolver
	Engine      *automation.Engine
}

// New connects to the database and Redis and builds the engine. The engine's
// tick loop is not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	if cfg.Database.URL == "" {
		return nil, ErrNoDatabase
	}
	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Println("Database connected")

	a := &App{
		Config:      cfg,
		DB:          db,
		Redis:       OpenRedis(ctx, cfg.Redis.URL),
		Leads:       postgres.NewLeadRepo(db),
		Enrollments: postgres.NewEnrollmentRepo(db),
		Rules:       rules.NewService(postgres.NewRuleRepo(db)),
	}

	if cfg.Bedrock.Enabled || cfg.SES.FromAddress != "" || cfg.Inbound.QueueURL != "" || cfg.Ingest.ArchiveBucket != "" {
		loaded, err := awsutil.Load(ctx, cfg.AWS.Region, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
		if err != nil {
			log.Printf("WARNING: Failed to load AWS config: %v", err)
		} else {
			a.AWS = &loaded
		}
	}

	var classifier automation.Classifier
	var responder *ai.Responder
	if cfg.Bedrock.Enabled && a.AWS != nil {
		model := ai.NewModelFromConfig(*a.AWS, cfg.Bedrock.ModelID)
		classifier = ai.NewClassifier(model)
		responder = ai.NewResponder(model)
		log.Printf("Bedrock AI enabled (model %s)", cfg.Bedrock.ModelID)
	}
	a.Resolver = automation.NewResolver(automation.NewEvaluator(classifier))

	executor := actions.NewExecutor(a.Leads, a.Enrollments, BuildNotifier(cfg, a.AWS))
	if responder != nil {
		executor.SetReplier(responder)
	}

	a.Engine = automation.NewEngine(a.Rules, a.Leads, executor, a.Resolver)
	a.Engine.SetDueSource(a.Leads)
	a.Engine.SetSchedule(cfg.Automation.Interval(), cfg.Automation.BatchSize)
	a.Engine.SetLockFactory(distlock.NewFactory(a.Redis, db, cfg.Automation.LockTTL()).Lock)
	if cfg.Automation.FiredOnce && a.Redis != nil {
		a.Engine.SetGuard(automation.NewRedisGuard(a.Redis, cfg.Automation.FiredTTL()))
	}
	return a, nil
}

// InboundConsumer returns the reply queue consumer, or nil when no queue is
// configured or AWS config failed to load. It is not started.
func (a *App) InboundConsumer() *inbound.Consumer {
	if a.Config.Inbound.QueueURL == "" || a.AWS == nil {
		return nil
	}
	return NewInboundConsumer(sqs.NewFromConfig(*a.AWS), a.Config.Inbound, a.Leads, a.Engine)
}

// NewInboundConsumer builds a consumer from the inbound config section.
func NewInboundConsumer(client inbound.SQSAPI, cfg config.InboundConfig, rec inbound.Recorder, events inbound.EventHandler) *inbound.Consumer {
	return inbound.NewConsumer(client, cfg.QueueURL, rec, events, inbound.Options{
		WaitSeconds:       int32(cfg.WaitSeconds),
		MaxMessages:       int32(cfg.MaxMessages),
		VisibilitySeconds: int32(cfg.VisibilitySeconds),
	})
}

// ImportArchiver returns the S3 payload archiver, or nil when no bucket is
// configured or AWS config failed to load.
func (a *App) ImportArchiver() *ingest.S3Archiver {
	if a.Config.Ingest.ArchiveBucket == "" || a.AWS == nil {
		return nil
	}
	return ingest.NewS3Archiver(s3.NewFromConfig(*a.AWS), a.Config.Ingest.ArchiveBucket, a.Config.Ingest.ArchivePrefix)
}

// Close stops the engine and releases connections.
func (a *App) Close() {
	a.Engine.Stop()
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.DB.Close()
}

// OpenDatabase connects to PostgreSQL with statement timeouts and pool limits.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	dbURL += sep + "options=-c%20statement_timeout%3D15000"
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenRedis returns nil when Redis is not configured or unreachable; locks
// then fall back to PG advisory locks and the fired-once guard is off.
func OpenRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("Redis not configured (REDIS_URL not set), using PG advisory locks for distributed locking")
		return nil
	}
	var client *redis.Client
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	} else {
		client = redis.NewClient(opts)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v, falling back to PG advisory locks", err)
		client.Close()
		return nil
	}
	log.Println("Redis connected (distributed locking enabled)")
	return client
}

// BuildNotifier registers a sender for each configured channel. SES needs
// awsCfg; SMS needs a gateway URL.
func BuildNotifier(cfg *config.Config, awsCfg *aws.Config) *notify.Router {
	router := notify.NewRouter()
	if cfg.SES.FromAddress != "" && awsCfg != nil {
		email := notify.NewEmailSenderFromConfig(*awsCfg, cfg.SES.FromAddress)
		if cfg.SES.ConfigurationSet != "" {
			email.SetConfigurationSet(cfg.SES.ConfigurationSet)
		}
		router.Handle(domain.ChannelEmail, email)
		log.Printf("SES email notifications enabled (from %s)", cfg.SES.FromAddress)
	}
	if cfg.SMS.GatewayURL != "" {
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.SMS.Timeout()}, cfg.SMS.MaxRetries)
		router.Handle(domain.ChannelSMS, notify.NewSMSSender(cfg.SMS.GatewayURL, cfg.SMS.Token, cfg.SMS.FromNumber, client))
		log.Println("SMS gateway notifications enabled")
	}
	return router
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}
