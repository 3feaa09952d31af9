package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/go-otp-auth/internal/auth"
	"github.com/redmonkez12/go-otp-auth/internal/config"
	"github.com/redmonkez12/go-otp-auth/internal/database"
	"github.com/redmonkez12/go-otp-auth/internal/email"
	httpServer "github.com/redmonkez12/go-otp-auth/internal/http"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/internal/otp"
	"github.com/redmonkez12/go-otp-auth/internal/ratelimit"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"token_format", cfg.Auth.TokenFormat,
	)

	// Initialize database connection
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(ctx, db); err != nil {
		return err
	}

	// Initialize Redis connection
	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	userRepo := user.NewRepository(db)
	revocations := auth.NewRedisRevocationStore(redisClient)
	passwordResetRepo := auth.NewPasswordResetRepository(redisClient)

	otpEngine := otp.NewEngine(userRepo, cfg.OTP.TTL)

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	emailService, err := email.NewService(sender, cfg.Email.AppName, cfg.Email.FrontendURL)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	tokenService, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	issuer := auth.NewIssuer(tokenService, revocations, cfg.Auth.AccessTokenDuration, cfg.Auth.RefreshTokenDuration)

	rateLimiter := ratelimit.NewLimiter(redisClient, cfg.RateLimit)

	// Initialize auth service
	authService := auth.NewService(
		userRepo,
		otpEngine,
		issuer,
		passwordResetRepo,
		emailService,
		rateLimiter,
		auth.NewPasswordHasher(auth.DefaultArgon2Params),
		logger,
		auth.Options{
			SendTimeout:      cfg.Email.SendTimeout,
			PasswordResetTTL: cfg.Auth.PasswordResetTTL,
		},
	)

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(authService, rateLimiter, logger)
	authMiddleware := auth.NewMiddleware(issuer)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger, map[string]httpServer.HealthCheck{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	// Let queued resend and reset mails go out before the stores close
	authService.Wait()

	return nil
}

// newSender picks SMTP when configured. Without SMTP, development logs mail
// and production refuses to start.
func newSender(cfg *config.Config, logger *logging.Logger) (email.Sender, error) {
	if cfg.Email.SMTPHost != "" {
		return email.NewSMTPSender(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.Sender(),
		), nil
	}

	if !cfg.Server.IsDevelopment() {
		return nil, fmt.Errorf("SMTP_HOST is required outside development")
	}

	logger.Warn("SMTP_HOST not set, emails will be written to the log")
	return email.NewLogSender(logger), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
