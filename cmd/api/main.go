package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	v1 "mkvr-chat/cmd/api/router/v1"
	"mkvr-chat/internal/config"
	cacheadapter "mkvr-chat/internal/infrastructure/cache/adapter"
	cacheport "mkvr-chat/internal/infrastructure/cache/port"
	"mkvr-chat/internal/infrastructure/database"
	qadapter "mkvr-chat/internal/infrastructure/queue/adapter"
	qport "mkvr-chat/internal/infrastructure/queue/port"
	"mkvr-chat/internal/infrastructure/realtime"
	streamadapter "mkvr-chat/internal/infrastructure/stream/adapter"
	streamport "mkvr-chat/internal/infrastructure/stream/port"
	"mkvr-chat/internal/infrastructure/webpush"
	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/pkg/chat/application/delivery"
	"mkvr-chat/internal/pkg/chat/application/task"
	"mkvr-chat/internal/pkg/chat/application/usecase"
	repoadapter "mkvr-chat/internal/pkg/chat/persistence/repository/adapter"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
	httpHandler "mkvr-chat/internal/pkg/chat/presentation/http"
	"mkvr-chat/internal/pkg/subscription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("load config")
	}
	closeLog, err := logging.Init(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		logging.Get().Fatal().Err(err).Msg("init logging")
	}
	defer closeLog()
	log := logging.Get()
	for _, w := range cfg.Validate() {
		log.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]v1.HealthCheck{}

	// Store
	var (
		chatRepo     repository.ChatRepository
		endpointRepo repository.PushEndpointRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		chatRepo = repoadapter.NewMemoryChatRepository()
		endpointRepo = repoadapter.NewMemoryPushEndpointRepository()
		log.Warn().Msg("using in-memory store; data is lost on restart")
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := database.Connect(connectCtx, cfg.DatabaseURL, database.WithMaxConns(int32(cfg.DBMaxConns)))
		if err == nil && cfg.AutoMigrate {
			err = database.Migrate(connectCtx, pool)
		}
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("connect to database")
		}
		defer pool.Close()
		chatRepo = repoadapter.NewPgChatRepository(pool)
		endpointRepo = repoadapter.NewPgPushEndpointRepository(pool)
		checks["postgres"] = func() error {
			c, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return pool.Ping(c)
		}
	}

	// Endpoint cache and push queue
	var (
		cache  cacheport.Cache
		queue  qport.Client
		worker qport.Server
	)
	if cfg.RedisURL != "" {
		rc, err := cacheadapter.NewRedisAdapter(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to redis")
		}
		cache = rc
		client, err := qadapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("create queue client")
		}
		queues := qadapter.ParseQueueWeights(cfg.QueueWeights)
		if _, ok := queues[cfg.PushQueue]; !ok {
			queues[cfg.PushQueue] = 1
		}
		srv, err := qadapter.NewAsynqServer(cfg.RedisURL, qadapter.AsynqServerConfig{
			Concurrency: cfg.QueueConcurrency,
			Queues:      queues,
			BaseBackoff: cfg.PushBaseBackoff,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("create queue worker")
		}
		queue, worker = client, srv
		checks["redis"] = func() error {
			c, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return rc.Ping(c)
		}
	} else {
		cache = cacheadapter.NewMemoryCache()
		lq := qadapter.NewLocalQueue(cfg.QueueConcurrency, cfg.PushBaseBackoff)
		queue, worker = lq, lq
	}
	defer func() { _ = cache.Close() }()
	defer func() { _ = queue.Close() }()

	// Event stream
	var publisher streamport.Publisher = streamadapter.NoopPublisher{}
	if cfg.NatsURL != "" {
		np, err := streamadapter.NewNatsPublisher(ctx, streamadapter.NatsConfig{
			URL:           cfg.NatsURL,
			StreamName:    cfg.StreamName,
			SubjectPrefix: cfg.SubjectPrefix,
		})
		if err != nil {
			log.Warn().Err(err).Msg("event stream unavailable; continuing without it")
		} else {
			publisher = np
		}
	}
	defer func() { _ = publisher.Close() }()

	// Push gateway
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		pub, priv, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Fatal().Err(err).Msg("generate VAPID keys")
		}
		cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey = pub, priv
	}
	gateway, err := webpush.NewGateway(webpush.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
		TTL:             cfg.PushTTL,
		Timeout:         cfg.PushTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create push gateway")
	}

	// Delivery
	hub := realtime.NewHub()
	defer hub.Close()
	registry := subscription.NewRegistry(hub, endpointRepo, cache, cfg.EndpointCacheTTL)
	router := delivery.NewRouter(registry, queue, publisher, delivery.Config{
		LiveSendTimeout: cfg.LiveSendTimeout,
		PushQueue:       cfg.PushQueue,
		PushMaxRetry:    cfg.PushMaxRetry,
		PushTimeout:     cfg.PushTimeout,
		SubjectPrefix:   cfg.SubjectPrefix,
	})
	task.RegisterPushNotificationTask(worker, task.NewPushNotificationTask(registry, gateway))

	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(ctx) }()

	unread := usecase.NewUnreadUseCase(chatRepo)
	deps := httpHandler.Dependencies{
		Start:           usecase.NewStartConversationUseCase(chatRepo, cfg.DefaultStaffID),
		List:            usecase.NewListConversationsUseCase(chatRepo, unread),
		Unread:          unread,
		History:         usecase.NewGetMessageUseCase(chatRepo, cfg.HistoryPageSize, cfg.MaxPageSize),
		Send:            usecase.NewSendMessageUseCase(chatRepo, router),
		MarkRead:        usecase.NewMarkReadUseCase(chatRepo),
		SubscribePush:   usecase.NewSubscribePushUseCase(registry),
		UnsubscribePush: usecase.NewUnsubscribePushUseCase(registry),
		Broadcast:       usecase.NewBroadcastUseCase(chatRepo, router, cfg.BroadcastConcurrency),
		Sessions:        registry,
		VAPIDPublicKey:  gateway.PublicKey(),
		RequestTimeout:  cfg.RequestTimeout,
		LiveSendTimeout: cfg.LiveSendTimeout,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), v1.RequestLogger())
	v1.RegisterRoutes(r, deps, cfg.MetricsEnabled, checks)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("chat service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := <-workerDone; err != nil {
		log.Warn().Err(err).Msg("queue worker stopped")
	}
}
