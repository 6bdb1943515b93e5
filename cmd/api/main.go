package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Egold-Exchange/uigisc-be/internal/config"
	"github.com/Egold-Exchange/uigisc-be/internal/credential"
	"github.com/Egold-Exchange/uigisc-be/internal/mailer"
	"github.com/Egold-Exchange/uigisc-be/internal/otp"
	"github.com/Egold-Exchange/uigisc-be/internal/role"
	"github.com/Egold-Exchange/uigisc-be/internal/router"
	"github.com/Egold-Exchange/uigisc-be/internal/token"
	"github.com/Egold-Exchange/uigisc-be/internal/user"
	userrepo "github.com/Egold-Exchange/uigisc-be/internal/user/repo"
	"github.com/Egold-Exchange/uigisc-be/pkg/database"
	"github.com/Egold-Exchange/uigisc-be/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting uigisc api", "environment", cfg.Environment, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	repo := userrepo.NewUserRepo(db)
	if err := repo.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure tables: %v", err)
	}

	ids, err := utilities.NewIDGenerator(cfg.SnowflakeNode)
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	// One store per process; every request shares it.
	codes := otp.NewStore(otp.Config{
		Policies: map[otp.Flow]otp.Policy{
			otp.FlowRegistrationVerify: {TTL: cfg.Codes.VerifyTTL},
			otp.FlowPasswordReset:      {TTL: cfg.Codes.ResetTTL, RetainOnSuccess: true},
		},
		MaxAttempts: cfg.Codes.MaxAttempts,
		CodeLength:  cfg.Codes.Length,
	})
	go codes.Sweep(ctx, cfg.Codes.SweepInterval)

	tokens := token.NewService([]byte(cfg.Token.SecretKey), cfg.Token.TTL(),
		token.WithIssuer(cfg.Token.Issuer),
		token.WithLogger(sugar.Named("token")),
	)

	svc := user.NewAuthService(user.Deps{
		Repo:   repo,
		Hasher: credential.BcryptHasher{Cost: credential.DefaultCost},
		Tokens: tokens,
		Codes:  codes,
		Roles:  role.NewClassifier(cfg.AdminEmails),
		Mailer: newMailer(cfg, sugar),
		IDs:    ids,
		Logger: sugar.Named("auth"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.RegisterRoutes(sugar, user.NewHandler(svc, sugar), tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	// let in-flight reset mails finish; each is bounded by its own timeout
	svc.Wait()
	sugar.Info("goodbye")
}

func newMailer(cfg config.Config, logger *zap.SugaredLogger) mailer.Mailer {
	if cfg.SMTP.Configured() {
		return mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From, logger.Named("mailer"))
	}
	logger.Warn("SMTP not configured; codes will only be logged")
	return mailer.NewLogMailer(logger.Named("mailer"), cfg.IsDevelopment())
}
