package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fulfillment-board/internal/api"
	"fulfillment-board/internal/board"
	"fulfillment-board/internal/config"
	"fulfillment-board/internal/countdown"
	"fulfillment-board/internal/export"
	"fulfillment-board/internal/failedlist"
	"fulfillment-board/internal/orderservice"
	"fulfillment-board/internal/push"
	"fulfillment-board/internal/ratelimit"
	"fulfillment-board/internal/reconcile"
	"fulfillment-board/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	svc := orderservice.New(cfg.OrderServiceURL, cfg.OrderServiceTimeout)

	cache := board.NewCache()
	list := failedlist.New(svc, cfg.PageSize, cfg.SearchDebounce)
	defer list.Stop()
	if err := list.Refresh(ctx); err != nil {
		log.Printf("initial failed-order fetch: %v", err)
	}

	watcher := countdown.NewWatcher(cache, cfg.CountdownTick)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("countdown watcher stopped: %v", err)
		}
	}()

	reconciler := reconcile.New(list, cache)
	subscriber := push.NewSubscriber(redisClient)
	unsubscribe, err := subscriber.Subscribe(ctx, cfg.BoardScope, func(ev push.Event) {
		if reconciler.Apply(ev) {
			watcher.Wake()
		}
	})
	if err != nil {
		// The board still works on manual refresh when the push channel is
		// down; degrade instead of failing.
		log.Printf("push subscription unavailable, continuing without: %v", err)
	} else {
		defer unsubscribe()
	}

	archiver, err := export.NewS3Archiver(ctx, cfg)
	if err != nil {
		log.Fatalf("init export archiver: %v", err)
	}
	exporter := export.New(svc, archiverOrNil(archiver))

	limiter := ratelimit.NewRetryLimiter(redisClient, cfg.RetryRateCapacity, cfg.RetryRateRefill, cfg.RetryRateTTL)

	server := api.New(cfg, cache, list, svc, exporter, watcher, limiter, st)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("board api listening on :%s (scope=%s)", cfg.HTTPPort, cfg.BoardScope)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	server.Engine().Wait()
}

// archiverOrNil keeps a typed-nil *S3Archiver from sneaking into the
// export.Archiver interface.
func archiverOrNil(a *export.S3Archiver) export.Archiver {
	if a == nil {
		return nil
	}
	return a
}
