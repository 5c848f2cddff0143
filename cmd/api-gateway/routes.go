package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/training-scheduler-api/internal/handler"
	"github.com/noah-isme/training-scheduler-api/internal/middleware"
	"github.com/noah-isme/training-scheduler-api/internal/models"
	"github.com/noah-isme/training-scheduler-api/pkg/config"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, a *app) {
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", a.metricsH.Health)
	r.GET("/ready", a.metricsH.Ready)
	r.GET("/metrics", a.metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	jwt := middleware.JWT(a.auth)
	admins := middleware.RequireRoles(models.RoleAdmin)
	schedulers := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)

	auth := api.Group("/auth")
	auth.POST("/login", a.authH.Login)
	auth.POST("/refresh", a.authH.Refresh)
	auth.POST("/logout", jwt, a.authH.Logout)
	auth.POST("/register", jwt, admins, a.userH.Register)

	users := api.Group("/users", jwt)
	users.GET("", admins, a.userH.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), a.userH.Get)
	users.PUT("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), a.userH.Update)
	users.PUT("/:id/password", middleware.RBAC(middleware.Self), a.userH.UpdatePassword)
	users.DELETE("/:id", admins, a.userH.Delete)

	registerPersonRoutes(api.Group("/instructors", jwt, schedulers), a, a.instructorH, models.PersonRoleInstructor)
	registerPersonRoutes(api.Group("/inspectors", jwt, schedulers), a, a.inspectorH, models.PersonRoleInspector)

	courses := api.Group("/courses", jwt, schedulers, middleware.Audit(a.userRepo, "courses", a.logger.Named("audit")))
	courses.GET("", a.courseH.List)
	courses.POST("", a.courseH.Create)
	courses.GET("/:id", a.courseH.Get)
	courses.PUT("/:id", a.courseH.Update)
	courses.DELETE("/:id", admins, a.courseH.Delete)

	branches := api.Group("/branches", jwt, schedulers, middleware.Audit(a.userRepo, "branches", a.logger.Named("audit")))
	branches.GET("", a.branchH.List)
	branches.POST("", a.branchH.Create)
	branches.GET("/:id", a.branchH.Get)
	branches.PUT("/:id", a.branchH.Update)
	branches.DELETE("/:id", admins, a.branchH.Delete)
	branches.GET("/:id/courses", a.courseH.ListByBranch)

	batches := api.Group("/batches", jwt, schedulers)
	batches.GET("", a.batchH.List)
	batches.POST("/conflicts", a.batchH.Conflicts)
	batches.GET("/:id", a.batchH.Get)
	batches.PUT("/:id", a.batchH.Update)
	batches.DELETE("/:id", a.batchH.Delete)

	if cfg.Reports.Enabled {
		reports := api.Group("/reports", jwt, schedulers)
		reports.POST("/workload", a.reportH.Workload)
		reports.GET("/workload/export", a.reportH.ExportWorkload)
		reports.POST("/persons/:id/batches", a.reportH.PersonBatches)
		reports.GET("/persons/:id/batches", a.reportH.AllPersonBatches)
	}
}

func registerPersonRoutes(g *gin.RouterGroup, a *app, h *handler.PersonHandler, role models.PersonRole) {
	audited := middleware.Audit(a.userRepo, string(role), a.logger.Named("audit"))

	g.GET("", h.List)
	g.POST("", audited, h.Create)
	g.POST("/available", h.Available)
	g.POST("/batches", a.batchH.Book(role))
	g.GET("/:id", h.Get)
	g.PUT("/:id", audited, h.Update)
	g.DELETE("/:id", audited, h.Delete)
	g.GET("/:id/batches", h.Batches)
}
