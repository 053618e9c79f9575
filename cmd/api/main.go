package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropmart/go-chain-settlement/internal/chain"
	"github.com/dropmart/go-chain-settlement/internal/config"
	"github.com/dropmart/go-chain-settlement/internal/httpx"
	kafkax "github.com/dropmart/go-chain-settlement/internal/kafka"
	"github.com/dropmart/go-chain-settlement/internal/orders"
	"github.com/dropmart/go-chain-settlement/internal/postgres"
	"github.com/dropmart/go-chain-settlement/internal/redisx"
	"github.com/dropmart/go-chain-settlement/internal/settlement"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	prodCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	prodCreated.Start(ctx)
	prodSettled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderSettled, 1024)
	prodSettled.Start(ctx)

	// Chain gateway
	gw := chain.NewRPC(cfg.ChainRPCURL)

	// Repo, coordinator, handler
	repo := orders.NewRepo(db)
	coord := &settlement.Coordinator{
		Store:           repo,
		Chain:           gw,
		CreatedProducer: prodCreated,
		SettledProducer: prodSettled,
		Service:         cfg.ServiceName,
	}
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Coord: coord,
		Reads: repo,
		Redis: rdb,
		Chain: gw,
	}
	oh.Register(router)

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
	_ = srv.Shutdown(ctx2)

	// close inboxes -> flush & close writers
	prodCreated.Close()
	prodSettled.Close()
	prodCreated.WaitClosed()
	prodSettled.WaitClosed()
}
