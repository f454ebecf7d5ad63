package container

import (
	"fmt"

	"github.com/exprsn/platform/cmd/platform/repository"
	"github.com/exprsn/platform/cmd/platform/service"
	"github.com/exprsn/platform/common/bootstrap"
	"github.com/exprsn/platform/common/clients"
	"github.com/exprsn/platform/common/ratelimit"
	"github.com/exprsn/platform/common/workspace"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Workspace  *workspace.Workspace
	Limiter    *ratelimit.RateLimiter // nil without Redis

	// Repositories
	ArtifactRepo   *repository.ArtifactRepository
	GitRepo        *repository.GitRepository
	CredentialRepo *repository.CredentialRepository
	ReportRepo     *repository.ReportRepository
	MigrationRepo  *repository.MigrationRepository
	TaskRepo       *repository.TaskRepository
	DocumentRepo   *repository.DocumentRepository

	// Services
	Notifications *service.NotificationService
	ArtifactSync  *service.ArtifactSyncService
	Credentials   *service.CredentialService
	PullRequests  *service.PullRequestService
	Reports       *service.ReportService
	Scheduler     *service.Scheduler // nil when SCHEDULER_ENABLED=false
	Schedules     *service.ScheduleService
	Migrations    *service.MigrationService
	Projects      *service.ProjectService
	Documents     *service.DocumentService
	Presence      *service.PresenceTracker
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("platform requires a database")
	}
	cfg := components.Config
	log := components.Logger

	ws := workspace.NewOS(cfg.Workspace.Root, log)

	// Repositories
	artifactRepo := repository.NewArtifactRepository(components.DB)
	gitRepo := repository.NewGitRepository(components.DB)
	credentialRepo := repository.NewCredentialRepository(components.DB)
	reportRepo := repository.NewReportRepository(components.DB)
	migrationRepo := repository.NewMigrationRepository(components.DB)
	taskRepo := repository.NewTaskRepository(components.DB)
	documentRepo := repository.NewDocumentRepository(components.DB)

	// Collaborating services
	timeout := cfg.Integrations.Timeout
	ci := clients.NewCIClient(cfg.Integrations.CIServiceURL, timeout, log)
	herald := clients.NewHeraldClient(cfg.Integrations.HeraldURL, timeout, log)
	spark := clients.NewSparkClient(cfg.Integrations.SparkURL, timeout, log)
	webhook := clients.NewWebhookClient(cfg.Scheduler.WebhookTimeout, log)

	// Credential verification is throttled only when Redis is available
	var (
		limiter  *ratelimit.RateLimiter
		throttle service.Throttle
	)
	if components.Redis != nil {
		limiter = ratelimit.NewRateLimiter(
			components.Redis.GetUnderlying(),
			ratelimit.WithLimit(cfg.Security.VerifyLimit, cfg.Security.VerifyWindowSecond),
			log,
		)
		throttle = limiter
	}

	// Services (bottom-up: dependencies first)
	notifications := service.NewNotificationService(components.Queue, herald, log)
	artifactSync := service.NewArtifactSyncService(artifactRepo, gitRepo, ws, log)
	credentials := service.NewCredentialService(credentialRepo, throttle, cfg.Security.BcryptCost, log)

	pullRequests, err := service.NewPullRequestService(
		gitRepo,
		service.NewWorkspaceMerger(ws),
		ci,
		notifications,
		spark,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request service: %w", err)
	}

	reports := service.NewReportService(reportRepo, repository.NewQueryProvider(components.DB), components.Cache, log)

	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled {
		exporter := service.NewOSExporter(cfg.Scheduler.ExportDir, cfg.Scheduler.ExportBaseURL, cfg.Scheduler.ExportTTL, log)
		scheduler = service.NewScheduler(
			reportRepo,
			reports,
			exporter,
			service.NewDelivery(notifications, webhook),
			cfg.Scheduler.CleanupCron,
			log,
		)
	}

	return &Container{
		Components:     components,
		Workspace:      ws,
		Limiter:        limiter,
		ArtifactRepo:   artifactRepo,
		GitRepo:        gitRepo,
		CredentialRepo: credentialRepo,
		ReportRepo:     reportRepo,
		MigrationRepo:  migrationRepo,
		TaskRepo:       taskRepo,
		DocumentRepo:   documentRepo,
		Notifications:  notifications,
		ArtifactSync:   artifactSync,
		Credentials:    credentials,
		PullRequests:   pullRequests,
		Reports:        reports,
		Scheduler:      scheduler,
		Schedules:      service.NewScheduleService(reportRepo, scheduler, log),
		Migrations:     service.NewMigrationService(migrationRepo, repository.NewScriptExecutor(components.DB), log),
		Projects:       service.NewProjectService(taskRepo, log),
		Documents:      service.NewDocumentService(documentRepo, spark, log),
		Presence:       service.NewPresenceTracker(spark, log),
	}, nil
}
