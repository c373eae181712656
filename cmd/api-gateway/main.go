package main

import (
	"fmt"
	"log"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sched-solver-api/api/swagger"
	internalhandler "github.com/noah-isme/sched-solver-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sched-solver-api/internal/middleware"
	"github.com/noah-isme/sched-solver-api/internal/models"
	"github.com/noah-isme/sched-solver-api/internal/repository"
	"github.com/noah-isme/sched-solver-api/internal/scheduler"
	"github.com/noah-isme/sched-solver-api/internal/service"
	"github.com/noah-isme/sched-solver-api/pkg/cache"
	"github.com/noah-isme/sched-solver-api/pkg/config"
	"github.com/noah-isme/sched-solver-api/pkg/database"
	"github.com/noah-isme/sched-solver-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sched-solver-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sched-solver-api/pkg/middleware/requestid"
)

// @title Schedule Solver API
// @version 0.1.0
// @description Constraint-based weekly timetable generator
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		registerPprof(r)
	}

	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)

	authRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(authRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sched-solver-api",
		Audience:           []string{"sched-solver-clients"},
	})
	authHandler := internalhandler.NewAuthHandler(authSvc)
	userSvc := service.NewUserService(authRepo, nil, logr)
	userHandler := internalhandler.NewUserHandler(userSvc)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/login", authHandler.Login)
	authRoutes.POST("/refresh", authHandler.Refresh)
	authRoutes.POST("/forgot-password", authHandler.ForgotPassword)
	authRoutes.POST("/reset-password", authHandler.ResetPassword)
	protectedAuth := authRoutes.Group("")
	protectedAuth.Use(internalmiddleware.JWT(authSvc))
	protectedAuth.POST("/logout", internalmiddleware.Audit(authRepo, "auth.logout", "auth"), authHandler.Logout)
	protectedAuth.POST("/change-password", internalmiddleware.Audit(authRepo, "auth.change_password", "auth"), authHandler.ChangePassword)

	teacherRepo := repository.NewTeacherRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	classSubjectRepo := repository.NewClassSubjectRepository(db)
	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	preferenceRepo := repository.NewTeacherPreferenceRepository(db)
	semesterScheduleRepo := repository.NewSemesterScheduleRepository(db)
	semesterSlotRepo := repository.NewSemesterScheduleSlotRepository(db)
	groupAssignmentRepo := repository.NewGroupAssignmentRepository(db)
	configurationRepo := repository.NewConfigurationRepository(db)

	teacherSvc := service.NewTeacherService(teacherRepo, nil, logr)
	assignmentSvc := service.NewTeacherAssignmentService(
		teacherRepo,
		classRepo,
		subjectRepo,
		termRepo,
		assignmentRepo,
		scheduleRepo,
		preferenceRepo,
		nil,
		logr,
	)
	preferenceSvc := service.NewTeacherPreferenceService(teacherRepo, preferenceRepo, nil, logr)
	teacherHandler := internalhandler.NewTeacherHandler(teacherSvc, assignmentSvc, preferenceSvc)
	var schedulePreferenceHandler *internalhandler.SchedulePreferenceAliasHandler
	if preferenceSvc != nil {
		schedulePreferenceHandler = internalhandler.NewSchedulePreferenceHandler(preferenceSvc)
	}

	classSvc := service.NewClassService(classRepo, subjectRepo, classSubjectRepo, nil, logr)
	classHandler := internalhandler.NewClassHandler(classSvc)
	classSubjectHandler := internalhandler.NewClassSubjectHandler(classSvc)
	subjectSvc := service.NewSubjectService(subjectRepo, nil, logr)
	subjectHandler := internalhandler.NewSubjectHandler(subjectSvc)
	termSvc := service.NewTermService(termRepo, nil, logr)
	termHandler := internalhandler.NewTermHandler(termSvc)
	scheduleSvc := service.NewScheduleService(scheduleRepo, nil, logr)
	scheduleHandler := internalhandler.NewScheduleHandler(scheduleSvc)

	var configurationSvc *service.ConfigurationService
	var configurationHandler *internalhandler.ConfigurationHandler
	if cfg.Configuration.Enabled {
		defaults := map[string]string{}
		if cfg.Configuration.ActiveTermID != "" {
			defaults["active_term_id"] = cfg.Configuration.ActiveTermID
		}
		if cfg.Scheduler.DefaultBackend != "" {
			defaults["default_solver_backend"] = cfg.Scheduler.DefaultBackend
		}
		configurationSvc = service.NewConfigurationService(
			configurationRepo,
			termRepo,
			authRepo,
			nil,
			logr,
			service.ConfigurationServiceConfig{Defaults: defaults},
		)
		configurationHandler = internalhandler.NewConfigurationHandler(configurationSvc)
	}

	var cacheRepo service.CacheRepository
	var cacheCloser interface{ Close() error }
	if cfg.Scheduler.Enabled {
		if client, err := cache.NewRedis(cfg.Redis); err != nil {
			logr.Sugar().Warnw("cache disabled", "error", err)
		} else {
			cacheCloser = client
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	if cacheCloser != nil {
		defer cacheCloser.Close()
	}

	var schedulerHandler *internalhandler.ScheduleGeneratorHandler
	if cfg.Scheduler.Enabled {
		schedulerSvc := service.NewScheduleGeneratorService(
			termRepo,
			classRepo,
			subjectRepo,
			assignmentRepo,
			preferenceRepo,
			scheduleRepo,
			semesterScheduleRepo,
			semesterSlotRepo,
			nil,
			db,
			nil,
			logr,
			service.ScheduleGeneratorConfig{
				ProposalTTL:                 cfg.Scheduler.ProposalTTL,
				DefaultBackend:              scheduler.Backend(cfg.Scheduler.DefaultBackend),
				DefaultPeriodsPerDay:        cfg.Scheduler.PeriodsPerDay,
				DefaultMaxSameSubjectPerDay: cfg.Scheduler.MaxSameSubjectPerDay,
				DefaultSolveTimeLimit:       cfg.Scheduler.SolveTimeLimit,
				DeterministicTieBreak:       cfg.Scheduler.DeterministicTieBreak,
			},
		).WithCache(service.NewCacheService(cacheRepo, metricsSvc, cfg.Scheduler.ProposalTTL, logr, cacheRepo != nil)).
			WithMetrics(metricsSvc).
			WithGroupAssignments(groupAssignmentRepo)
		if configurationSvc != nil {
			schedulerSvc = schedulerSvc.WithConfiguration(configurationSvc)
		}
		schedulerHandler = internalhandler.NewScheduleGeneratorHandler(schedulerSvc)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))
	secured.Use(internalmiddleware.WithResponseMeta())

	teachersGroup := secured.Group("/teachers")
	teachersGroup.GET("", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.List)
	teachersGroup.POST("", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.Create)
	teachersGroup.GET("/:id", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.Get)
	teachersGroup.PUT("/:id", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.Update)
	teachersGroup.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), teacherHandler.Delete)
	teachersGroup.GET("/:id/assignments", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.ListAssignments)
	teachersGroup.POST("/:id/assignments", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.CreateAssignment)
	teachersGroup.DELETE("/:id/assignments/:aid", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.DeleteAssignment)
	teachersGroup.GET("/:id/preferences", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.GetPreferences)
	teachersGroup.PUT("/:id/preferences", internalmiddleware.RBAC("SELF", string(models.RoleAdmin), string(models.RoleSuperAdmin)), teacherHandler.UpsertPreferences)

	usersGroup := secured.Group("/users")
	usersGroup.Use(internalmiddleware.RBAC(string(models.RoleSuperAdmin)))
	usersGroup.GET("", userHandler.List)
	usersGroup.GET("/:id", userHandler.Get)
	usersGroup.POST("", internalmiddleware.Audit(authRepo, "user.create", "user"), userHandler.Create)
	usersGroup.PUT("/:id", internalmiddleware.Audit(authRepo, "user.update", "user"), userHandler.Update)
	usersGroup.DELETE("/:id", internalmiddleware.Audit(authRepo, "user.delete", "user"), userHandler.Delete)

	adminWrite := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin))

	classesGroup := secured.Group("/classes")
	classesGroup.GET("", classHandler.List)
	classesGroup.GET("/:id", classHandler.Get)
	classesGroup.POST("", adminWrite, internalmiddleware.Audit(authRepo, "class.create", "class"), classHandler.Create)
	classesGroup.PUT("/:id", adminWrite, internalmiddleware.Audit(authRepo, "class.update", "class"), classHandler.Update)
	classesGroup.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "class.delete", "class"), classHandler.Delete)
	classesGroup.GET("/:id/subjects", classSubjectHandler.List)
	classesGroup.POST("/:id/subjects", adminWrite, internalmiddleware.Audit(authRepo, "class.assign_subjects", "class"), classSubjectHandler.Assign)

	subjectsGroup := secured.Group("/subjects")
	subjectsGroup.GET("", subjectHandler.List)
	subjectsGroup.GET("/:id", subjectHandler.Get)
	subjectsGroup.POST("", adminWrite, internalmiddleware.Audit(authRepo, "subject.create", "subject"), subjectHandler.Create)
	subjectsGroup.PUT("/:id", adminWrite, internalmiddleware.Audit(authRepo, "subject.update", "subject"), subjectHandler.Update)
	subjectsGroup.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "subject.delete", "subject"), subjectHandler.Delete)

	termsGroup := secured.Group("/terms")
	termsGroup.GET("", termHandler.List)
	termsGroup.GET("/active", termHandler.GetActive)
	termsGroup.POST("", adminWrite, internalmiddleware.Audit(authRepo, "term.create", "term"), termHandler.Create)
	termsGroup.PUT("/:id", adminWrite, internalmiddleware.Audit(authRepo, "term.update", "term"), termHandler.Update)
	termsGroup.POST("/set-active", adminWrite, internalmiddleware.Audit(authRepo, "term.set_active", "term"), termHandler.SetActive)
	termsGroup.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "term.delete", "term"), termHandler.Delete)

	schedulesGroupCRUD := secured.Group("/daily-schedules")
	schedulesGroupCRUD.GET("", scheduleHandler.List)
	schedulesGroupCRUD.GET("/class/:id", scheduleHandler.ListByClass)
	schedulesGroupCRUD.GET("/teacher/:id", scheduleHandler.ListByTeacher)
	schedulesGroupCRUD.POST("", adminWrite, internalmiddleware.Audit(authRepo, "schedule.create", "schedule"), scheduleHandler.Create)
	schedulesGroupCRUD.POST("/bulk", adminWrite, internalmiddleware.Audit(authRepo, "schedule.bulk_create", "schedule"), scheduleHandler.BulkCreate)
	schedulesGroupCRUD.PUT("/:id", adminWrite, internalmiddleware.Audit(authRepo, "schedule.update", "schedule"), scheduleHandler.Update)
	schedulesGroupCRUD.DELETE("/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "schedule.delete", "schedule"), scheduleHandler.Delete)

	if configurationHandler != nil {
		configGroup := secured.Group("/configuration")
		configGroup.Use(internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)))
		configGroup.GET("", configurationHandler.List)
		configGroup.GET("/:key", configurationHandler.Get)
		configGroup.PUT("/:key", internalmiddleware.Audit(authRepo, "configuration.update", "configuration"), configurationHandler.Update)
		configGroup.PUT("/bulk", internalmiddleware.Audit(authRepo, "configuration.bulk_update", "configuration"), configurationHandler.BulkUpdate)
	}

	if schedulerHandler != nil {
		schedulerGroup := secured.Group("")
		schedulerGroup.POST("/schedule/generate", adminWrite, schedulerHandler.Generate)
		schedulerGroup.POST("/schedules/generator", adminWrite, schedulerHandler.GenerateAlias)
		schedulerGroup.POST("/schedule/save", adminWrite, internalmiddleware.Audit(authRepo, "schedule.save", "semester_schedule"), schedulerHandler.Save)
		schedulerGroup.GET("/semester-schedule", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), schedulerHandler.List)
		schedulerGroup.GET("/semester-schedule/:id/slots", internalmiddleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), string(models.RoleSuperAdmin)), schedulerHandler.Slots)
		schedulerGroup.DELETE("/semester-schedule/:id", internalmiddleware.RBAC(string(models.RoleSuperAdmin)), internalmiddleware.Audit(authRepo, "schedule.delete_semester", "semester_schedule"), schedulerHandler.Delete)
	}

	if schedulePreferenceHandler != nil {
		preferencesGroup := secured.Group("/schedules")
		preferencesGroup.GET("/preferences", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), schedulePreferenceHandler.Get)
		preferencesGroup.POST("/preferences", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin)), schedulePreferenceHandler.Upsert)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func registerPprof(r *gin.Engine) {
	group := r.Group("/debug/pprof")
	group.GET("/", gin.WrapF(pprof.Index))
	group.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	group.GET("/profile", gin.WrapF(pprof.Profile))
	group.POST("/symbol", gin.WrapF(pprof.Symbol))
	group.GET("/symbol", gin.WrapF(pprof.Symbol))
	group.GET("/trace", gin.WrapF(pprof.Trace))
	group.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
	group.GET("/block", gin.WrapH(pprof.Handler("block")))
	group.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	group.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	group.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
	group.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
}
