package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/koinonia/community/internal/config"
	"github.com/koinonia/community/internal/database"
	"github.com/koinonia/community/internal/handler"
	"github.com/koinonia/community/internal/queue"
	"github.com/koinonia/community/internal/repository"
	"github.com/koinonia/community/internal/router"
	"github.com/koinonia/community/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	runner := database.NewTxRunner(db)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	communities := repository.NewCommunityRepo(db)
	memberships := repository.NewMembershipRepo(db)
	requests := repository.NewRequestRepo(db)
	votes := repository.NewVoteRepo(db)
	invites := repository.NewInviteRepo(db)

	verify := service.NewVerificationService(
		runner, communities, memberships, requests, votes,
		cfg.MinTenure, queue.PublishMembershipVerified,
	)
	inviteSvc := service.NewInviteService(runner, invites)

	// Redis backs the rate limiter and the browse cache. nil is fine:
	// both middlewares degrade to pass-through.
	rdb := config.NewRedisClient()

	// Consume verified-membership events in the background. The
	// consumer reconnects on broker failures; a hard error here only
	// disables the audit log, never the API.
	go func() {
		if err := queue.StartVerifiedConsumer(); err != nil {
			log.Printf("queue consumer stopped: %v", err)
		}
	}()

	// Periodic sweep marking overdue PENDING requests EXPIRED. The
	// admin endpoint triggers the same sweep on demand.
	if cfg.ExpireInterval > 0 {
		go func() {
			t := time.NewTicker(cfg.ExpireInterval)
			defer t.Stop()
			for range t.C {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := verify.ExpireStaleRequests(ctx, cfg.RequestTTL)
				cancel()
				if err != nil {
					log.Printf("expire sweep: %v", err)
				} else if n > 0 {
					log.Printf("expire sweep: %d requests expired", n)
				}
			}
		}()
	}

	authH := handler.NewAuthHandler(cfg, users, tokens, inviteSvc)
	communityH := handler.NewCommunityHandler(communities, memberships, verify)
	verifyH := handler.NewVerificationHandler(verify, cfg.RequestTTL)
	inviteH := handler.NewInviteHandler(inviteSvc)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret)
	router.RegisterPublic(e, communityH, inviteH, rdb)
	router.RegisterMember(e, communityH, verifyH, inviteH, cfg.JWTSecret, rdb)
	router.RegisterAdmin(e, verifyH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
