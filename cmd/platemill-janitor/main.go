package main

import (
	"context"
	"database/sql"
	"flag"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platemill/platemill/pkg/audit"
	"github.com/platemill/platemill/pkg/auth"
	"github.com/platemill/platemill/pkg/config"
	"github.com/platemill/platemill/pkg/observability"
	"github.com/platemill/platemill/pkg/orgs"
)

var (
	invitationSchedule = flag.String("invitation-schedule", "0 * * * *", "Cron schedule for expired invitation cleanup")
	tokenSchedule      = flag.String("token-schedule", "30 * * * *", "Cron schedule for expired token cleanup")
	auditSchedule      = flag.String("audit-schedule", "15 1 * * *", "Cron schedule for audit retention enforcement")
	runOnce            = flag.Bool("run-once", false, "Run every job once and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("failed to ping database")
	}

	janitor := &janitor{
		orgService: orgs.NewPostgresService(db),
		tokens:     auth.NewTokenManager(db),
		retention:  time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour,
		logger:     logger,
	}
	if cfg.Audit.DBEnabled {
		auditLogger, err := audit.NewDBLogger(db)
		if err != nil {
			logger.WithError(err).Fatal("failed to initialize audit table")
		}
		janitor.auditLogger = auditLogger
	}

	if *runOnce {
		ctx := context.Background()
		janitor.cleanupInvitations(ctx)
		janitor.cleanupTokens(ctx)
		janitor.cleanupAudit(ctx)
		return
	}

	c := cron.New()
	schedule := func(name, spec string, job func(context.Context)) {
		_, err := c.AddFunc(spec, func() {
			defer observability.RecoverPanic(logger, name)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			job(ctx)
		})
		if err != nil {
			logger.WithError(err).WithField("job", name).Fatal("failed to schedule job")
		}
	}

	schedule("invitation cleanup", *invitationSchedule, janitor.cleanupInvitations)
	schedule("token cleanup", *tokenSchedule, janitor.cleanupTokens)
	schedule("audit retention", *auditSchedule, janitor.cleanupAudit)

	logger.Info("janitor started")
	c.Run()
}

type janitor struct {
	orgService  *orgs.PostgresService
	tokens      *auth.TokenManager
	auditLogger *audit.DBLogger
	retention   time.Duration
	logger      *logrus.Logger
}

func (j *janitor) cleanupInvitations(ctx context.Context) {
	removed, err := j.orgService.CleanupExpiredInvitations(ctx)
	if err != nil {
		j.logger.WithError(err).Error("invitation cleanup failed")
		return
	}
	j.logger.WithField("removed", removed).Info("expired invitations removed")
}

func (j *janitor) cleanupTokens(ctx context.Context) {
	removed, err := j.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		j.logger.WithError(err).Error("token cleanup failed")
		return
	}
	j.logger.WithField("removed", removed).Info("expired tokens removed")
}

func (j *janitor) cleanupAudit(ctx context.Context) {
	if j.auditLogger == nil || j.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.auditLogger.CleanupBefore(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("audit retention enforcement failed")
		return
	}
	j.logger.WithFields(logrus.Fields{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("old audit events removed")
}
