package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/afshinator/BatchSMS/internal/appstate"
	"github.com/afshinator/BatchSMS/internal/composer"
	"github.com/afshinator/BatchSMS/internal/config"
	"github.com/afshinator/BatchSMS/internal/handlers"
	"github.com/afshinator/BatchSMS/internal/ingest"
	"github.com/afshinator/BatchSMS/internal/prefs"
	"github.com/afshinator/BatchSMS/internal/repository"
	"github.com/afshinator/BatchSMS/internal/selection"
	"github.com/afshinator/BatchSMS/internal/send"
	"github.com/afshinator/BatchSMS/internal/services"
	xhttp "github.com/afshinator/BatchSMS/pkg/http"
	"github.com/afshinator/BatchSMS/pkg/logger"
	"github.com/afshinator/BatchSMS/pkg/pg"
	"github.com/afshinator/BatchSMS/pkg/prom"
	"github.com/afshinator/BatchSMS/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	if config.Get().MetricsAddr != "" {
		host, _ := os.Hostname()
		if err := prom.Create(host, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to register metrics", "error", err)
		}
		go prom.ListenAndServer(config.Get().MetricsAddr, config.Get().MetricsURI)
	}

	// Run history is optional: without Postgres the API still drives the
	// whole flow, it just cannot serve past runs.
	var history services.RunHistory
	var recorder send.Recorder
	if config.Get().PostgresWriteHost != "" {
		readConf := pg.Config{
			User:     config.Get().PostgresReadUser,
			Host:     config.Get().PostgresReadHost,
			Port:     config.Get().PostgresReadPort,
			Password: config.Get().PostgresReadPassword,
			Database: config.Get().PostgresReadDatabase,
		}
		writeConf := pg.Config{
			User:     config.Get().PostgresWriteUser,
			Host:     config.Get().PostgresWriteHost,
			Port:     config.Get().PostgresWritePort,
			Password: config.Get().PostgresWritePassword,
			Database: config.Get().PostgresWriteDatabase,
		}

		pgDebug := false
		if config.Get().AppEnv == "dev" {
			pgDebug = true
		}
		db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
		if err != nil {
			logger.Error("failed connecting to pg", "error", err)
			return
		}
		runRepo := repository.NewRunRepository(db)
		history = runRepo
		recorder = runRepo
	}

	prefsStore, err := buildPrefsStore()
	if err != nil {
		logger.Error("failed building preference store", "error", err)
		return
	}

	composerClient := composer.NewClient(composer.ClientConfig{
		BaseURL: config.Get().ComposerURL,
		Timeout: config.Get().ComposerTimeout,
	})

	supervisorOpts := []send.Option{send.WithDelay(config.Get().SendStepDelay)}
	if recorder != nil {
		supervisorOpts = append(supervisorOpts, send.WithRecorder(recorder))
	}
	supervisor := send.NewSupervisor(composerClient, supervisorOpts...)

	csvOpts := ingest.DefaultOptions()
	if d := config.Get().CsvDelimiter; d != "" {
		csvOpts.Delimiter = d
	}

	// services
	workflowService := services.NewWorkflowService(
		appstate.New(),
		selection.NewSession(),
		prefs.NewService(prefsStore),
		supervisor,
		history,
		csvOpts,
	)

	// v1 handlers
	workflowHandler := handlers.NewWorkflowHandler(workflowService)
	healthHandler := handlers.NewHealthHandler(composerHealth{composerClient})

	g := s.Router.Group("/api/v1")
	handlers.RegisterWorkflowRoutes(g, workflowHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	logger.Info("api starting", "version", version, "commit", commit, "built", date, "addr", config.Get().HttpListenAddr)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

// composerHealth reports API health by pinging the composer provider.
type composerHealth struct {
	client *composer.Client
}

func (h composerHealth) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.client.Ping(ctx)
}

func buildPrefsStore() (prefs.Store, error) {
	if config.Get().PrefsBackend != "redis" {
		return prefs.NewMemoryStore(), nil
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		return nil, err
	}
	return prefs.NewRedisStore(redisAdap, "prefs"), nil
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
