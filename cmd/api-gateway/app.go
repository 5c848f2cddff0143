package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/training-scheduler-api/internal/handler"
	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/internal/repository"
	"github.com/noah-isme/training-scheduler-api/internal/service"
	"github.com/noah-isme/training-scheduler-api/pkg/config"
	"github.com/noah-isme/training-scheduler-api/pkg/jobs"
)

type app struct {
	logger      *zap.Logger
	auth        *service.AuthService
	metrics     *service.MetricsService
	userRepo    *repository.UserRepository
	cacheRepo   *repository.CacheRepository
	statuses    *service.StatusWriter
	authH       *handler.AuthHandler
	userH       *handler.UserHandler
	instructorH *handler.PersonHandler
	inspectorH  *handler.PersonHandler
	courseH     *handler.CourseHandler
	branchH     *handler.BranchHandler
	batchH      *handler.BatchHandler
	reportH     *handler.ReportHandler
	metricsH    *handler.MetricsHandler
}

func bookingConfig(cfg config.BookingConfig) service.BookingConfig {
	return service.BookingConfig{
		InstructorScope: models.ConflictScope(cfg.InstructorScope),
		InspectorScope:  models.ConflictScope(cfg.InspectorScope),
		ComputedCounter: cfg.CounterMode == config.CounterComputed,
	}
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *app {
	validate := service.NewValidator()
	booking := bookingConfig(cfg.Booking)

	userRepo := repository.NewUserRepository(db)
	personRepo := repository.NewPersonRepository(db, booking.ComputedCounter)
	courseRepo := repository.NewCourseRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	relationRepo := repository.NewRelationRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr.Named("cache"))

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Summary.CacheTTL, logr.Named("cache"), redisClient != nil)
	summary := service.NewSummaryService(batchRepo, cacheSvc, cfg.Summary.CacheTTL, logr.Named("summary"))
	relations := service.NewRelationSynchronizer(relationRepo, logr.Named("relations"))

	auth := service.NewAuthService(userRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	users := service.NewUserService(userRepo, validate, logr.Named("users"))
	persons := service.NewPersonService(personRepo, courseRepo, branchRepo, batchRepo, relations, db, summary, validate, logr.Named("persons"))
	courses := service.NewCourseService(courseRepo, branchRepo, personRepo, batchRepo, relations, db, summary, validate, logr.Named("courses"))
	branches := service.NewBranchService(branchRepo, courseRepo, batchRepo, relations, db, summary, validate, logr.Named("branches"))
	bookings := service.NewBookingService(batchRepo, personRepo, courseRepo, branchRepo, userRepo, db, summary, metrics, validate, logr.Named("bookings"), booking)
	statuses := service.NewStatusWriter(batchRepo, jobs.QueueConfig{Workers: 2, MaxRetries: 2, Logger: logr.Named("jobs")})
	bookings.UseStatusWriter(statuses)
	availability := service.NewAvailabilityService(personRepo, batchRepo, validate, logr.Named("availability"))
	reports := service.NewReportService(reportRepo, bookings, personRepo, nil, nil, validate, logr.Named("reports"))

	readiness := map[string]handler.Pinger{
		"database": db,
		"cache":    handler.PingFunc(cacheRepo.Ping),
	}

	return &app{
		logger:      logr,
		auth:        auth,
		metrics:     metrics,
		userRepo:    userRepo,
		cacheRepo:   cacheRepo,
		statuses:    statuses,
		authH:       handler.NewAuthHandler(auth),
		userH:       handler.NewUserHandler(users, auth),
		instructorH: handler.NewPersonHandler(models.PersonRoleInstructor, persons, availability, bookings),
		inspectorH:  handler.NewPersonHandler(models.PersonRoleInspector, persons, availability, bookings),
		courseH:     handler.NewCourseHandler(courses),
		branchH:     handler.NewBranchHandler(branches),
		batchH:      handler.NewBatchHandler(bookings, summary),
		reportH:     handler.NewReportHandler(reports),
		metricsH:    handler.NewMetricsHandler(metrics, readiness),
	}
}
