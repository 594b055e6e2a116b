package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"

	appoutbox "helpdesk/internal/app/outbox"
	authsvc "helpdesk/internal/app/services/auth"
	"helpdesk/internal/app/services/inbox"
	pagesvc "helpdesk/internal/app/services/pages"
	replysvc "helpdesk/internal/app/services/reply"
	domainauth "helpdesk/internal/domain/auth"
	domainconv "helpdesk/internal/domain/conversation"
	domainpage "helpdesk/internal/domain/page"
	domainuser "helpdesk/internal/domain/user"
	"helpdesk/internal/infra/broker/kafka"
	"helpdesk/internal/infra/channel/facebook"
	"helpdesk/internal/infra/config"
	mongodb "helpdesk/internal/infra/db/mongo"
	ginserver "helpdesk/internal/infra/http/gin"
	"helpdesk/internal/infra/obs"
	infraoutbox "helpdesk/internal/infra/outbox"
	"helpdesk/internal/infra/security"
	"helpdesk/internal/infra/storage/memory"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	st, ready, err := buildStores(cfg)
	if err != nil {
		logger.Error("storage initialization failed", "error", err)
		os.Exit(1)
	}
	logger.Info("storage ready", "mode", cfg.StorageMode)

	channel := &facebook.Client{
		HTTP:        &http.Client{Timeout: cfg.SendTimeout},
		BaseURL:     cfg.GraphAPIBase,
		AppID:       cfg.FacebookAppID,
		AppSecret:   cfg.FacebookAppSecret,
		RedirectURL: cfg.OAuthRedirectURL,
		Logger:      logger,
	}

	authService := &authsvc.Service{
		Users:      st.users,
		Sessions:   st.sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	ingestor := &inbox.Ingestor{
		Resolver:    &inbox.Resolver{Conversations: st.conversations},
		Messages:    st.messages,
		Outbox:      st.outbox,
		Logger:      logger,
		VerifyToken: cfg.WebhookVerifyToken,
	}
	replyService := &replysvc.Service{
		Conversations: st.conversations,
		Messages:      st.messages,
		Pages:         st.pages,
		Channel:       channel,
		SendTimeout:   cfg.SendTimeout,
		Outbox:        st.outbox,
		Logger:        logger,
	}
	pageService := &pagesvc.Service{
		Registry: st.pages,
		Channel:  channel,
		Logger:   logger,
	}

	handlers := ginserver.Handlers{
		Auth: ginserver.AuthHandler{Service: authService, Logger: logger},
		Webhook: ginserver.WebhookHandler{
			Ingestor: ingestor,
			Logger:   logger,
		},
		Conversation: ginserver.ConversationHandler{
			Conversations: st.conversations,
			MessageStore:  st.messages,
			Pages:         st.pages,
			Replies:       replyService,
			Logger:        logger,
		},
		Page: ginserver.PageHandler{
			Service: pageService,
			Channel: channel,
			Logger:  logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: ready}, handlers)

	startOutboxWorker(ctx, cfg, st.queue, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type stores struct {
	conversations domainconv.Repository
	messages      domainconv.MessageRepository
	pages         domainpage.Registry
	users         domainuser.Repository
	sessions      domainauth.SessionStore
	outbox        appoutbox.Outbox
	queue         infraoutbox.Queue
}

func buildStores(cfg config.Config) (stores, func() error, error) {
	if cfg.StorageMode == "mongo" {
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return stores{}, nil, err
		}
		outboxStore := mongodb.NewOutboxStore(client.DB)
		return stores{
			conversations: mongodb.NewConversationRepository(client.DB),
			messages:      mongodb.NewMessageRepository(client.DB),
			pages:         mongodb.NewPageRegistry(client.DB),
			users:         mongodb.NewUserRepository(client.DB),
			sessions:      mongodb.NewSessionStore(client.DB),
			outbox:        outboxStore,
			queue:         outboxStore,
		}, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(ctx)
		}, nil
	}

	outboxQueue := memory.NewOutboxQueue()
	return stores{
		conversations: memory.NewConversationRepository(),
		messages:      memory.NewMessageRepository(),
		pages:         memory.NewPageRegistry(),
		users:         memory.NewUserRepository(),
		sessions:      memory.NewSessionStore(),
		outbox:        outboxQueue,
		queue:         outboxQueue,
	}, func() error { return nil }, nil
}

// startOutboxWorker publishes stored domain events to Kafka. Without brokers
// configured events stay queued, which is fine for local runs.
func startOutboxWorker(ctx context.Context, cfg config.Config, queue infraoutbox.Queue, logger *slog.Logger) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("outbox worker disabled, no kafka brokers configured")
		return
	}
	saramaCfg := sarama.NewConfig()
	saramaCfg.Net.MaxOpenRequests = 1
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, saramaCfg)
	if err != nil {
		logger.Error("kafka producer init failed", "error", err)
		return
	}
	worker := &infraoutbox.Worker{
		Queue:       queue,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Source:      "helpdesk",
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox worker stopped", "error", err)
		}
	}()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
