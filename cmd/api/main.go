package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-orders-readpath/internal/config"
	"github.com/ariefcatur/go-orders-readpath/internal/httpx"
	kafkax "github.com/ariefcatur/go-orders-readpath/internal/kafka"
	"github.com/ariefcatur/go-orders-readpath/internal/metrics"
	"github.com/ariefcatur/go-orders-readpath/internal/orders"
	"github.com/ariefcatur/go-orders-readpath/internal/postgres"
	"github.com/ariefcatur/go-orders-readpath/internal/readcache"
	"github.com/ariefcatur/go-orders-readpath/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.Options{
		MaxConns:         cfg.DBMaxConns,
		StatementTimeout: cfg.StatementTimeout,
	})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Printf("redis unavailable, catalog lookups go to postgres: %v", err)
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	rec := metrics.NewRecorder(metrics.Options{
		AlertURL:  cfg.AlertWebhookURL,
		SlowAfter: cfg.AlertSlowAfter,
	})

	// Read path
	repo := &orders.Repo{DB: db}
	detector := orders.NewStyleDetector(repo)
	if style, err := detector.Detect(ctx); err != nil {
		log.Printf("schema detection deferred: %v", err)
	} else {
		log.Printf("orders table uses %s column names", style)
	}
	cache := readcache.New[orders.Page](readcache.Options{
		HotTTL:     cfg.HotCacheTTL,
		StaleTTL:   cfg.StaleCacheTTL,
		MaxEntries: cfg.HotCacheMaxItems,
		OnFailure:  rec.ObserveFailure,
	})
	reader := orders.NewReader(repo, detector, cache, orders.ReaderOptions{
		ChunkSize: cfg.FetchChunkSize,
		MaxWindow: cfg.KeysetMaxWindow,
		OnSplit:   rec.ObserveSplit,
	})

	// Write path
	rate, err := decimal.NewFromString(cfg.CommissionFallbackRate)
	if err != nil {
		log.Fatalf("COMMISSION_FALLBACK_RATE: %v", err)
	}
	catalog := &orders.CachedCatalog{
		Next:  &orders.CatalogRepo{DB: db},
		Redis: rdb,
		TTL:   cfg.CatalogCacheTTL,
	}
	svc := orders.NewService(repo, detector, catalog, kafkax.EventPublisher{P: prod}, reader, orders.ServiceOptions{
		FallbackRate: rate,
		Producer:     cfg.ServiceName,
	})

	// Every instance purges its own hot cache on any order event, so each
	// needs its own consumer group.
	if cfg.InvalidationEnabled {
		group := cfg.ServiceName + "-cache-" + uuid.NewString()
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group,
			[]string{orders.TopicOrderStatusChanged, orders.TopicOrderUpdated}, 1)
		go func() {
			log.Printf("cache invalidation consumer started: group=%s", group)
			if err := cons.Start(ctx, kafkax.InvalidateOnChange(reader)); err != nil {
				log.Printf("invalidation consumer exit: %v", err)
			}
		}()
	}

	router := httpx.NewRouter(rec)
	oh := &httpx.OrdersHandler{
		Reader:  reader,
		Service: svc,
		Metrics: rec,
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	prod.Close()      // close inbox, flush and close the writer
	cancel()          // stop producer loop and consumer
	prod.WaitClosed() // drain
}
