package main

import (
	"context"
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/auth"
	"github.com/commutealarm/commutealarm/pkg/config"
	"github.com/commutealarm/commutealarm/pkg/logging"
	"github.com/commutealarm/commutealarm/pkg/store/postgres"
)

func main() {
	issueToken := flag.Int64("issue-token", 0, "print a member token for the given member id after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("schema migrated", zap.String("driver", cfg.Database.Driver))

	if *issueToken <= 0 {
		return
	}
	if _, err := postgres.NewMemberRepository(db.DB()).GetIfExists(context.Background(), *issueToken); err != nil {
		logger.Fatal("cannot issue token", zap.Int64("member_id", *issueToken), zap.Error(err))
	}
	token, err := auth.NewMemberTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer).Generate(*issueToken)
	if err != nil {
		logger.Fatal("failed to sign token", zap.Error(err))
	}
	fmt.Println(token)
}
