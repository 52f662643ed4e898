// Command intaked runs the package-intake HTTP server: it wires the
// repository adapters, the integrity/validation/duplicate/commit
// collaborators, and the watched-folder poller into a pipeline.Service and
// serves it over HTTP, adapted from the teacher's cmd/server/main.go
// (database connect, godotenv, signal-based graceful shutdown) but driven
// by internal/config instead of scattered os.Getenv calls.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/landtenure/intake/internal/config"
	"github.com/landtenure/intake/internal/intake/archive"
	"github.com/landtenure/intake/internal/intake/audit"
	"github.com/landtenure/intake/internal/intake/blobstore"
	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/commit"
	"github.com/landtenure/intake/internal/intake/duplicate"
	"github.com/landtenure/intake/internal/intake/loader"
	"github.com/landtenure/intake/internal/intake/lock"
	"github.com/landtenure/intake/internal/intake/pipeline"
	"github.com/landtenure/intake/internal/intake/receiver"
	"github.com/landtenure/intake/internal/intake/repository"
	"github.com/landtenure/intake/internal/intake/resolver"
	"github.com/landtenure/intake/internal/intake/validator"
	"github.com/landtenure/intake/internal/intake/vocabulary"
	"github.com/landtenure/intake/internal/intake/watchedfolder"
	"github.com/landtenure/intake/internal/logging"
	"github.com/landtenure/intake/internal/web"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		log.Println("no .env file found, using environment variables")
	} else {
		log.Println("loaded .env file (overwriting existing env vars)")
	}

	cfg := config.MustLoad()
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := os.MkdirAll(cfg.Intake.StageDir, 0o755); err != nil {
		log.Fatalf("failed to create stage directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Intake.ArchiveRoot, 0o755); err != nil {
		log.Fatalf("failed to create archive root: %v", err)
	}

	packages := repository.NewImportPackageStore(pool)
	staging := repository.NewStagingStore(pool)
	conflicts := repository.NewConflictStore(pool)
	prod := repository.NewProductionStore(pool)
	claimNums := repository.NewClaimNumberGenerator(pool)

	blobRoot := cfg.Intake.ArchiveRoot + "/blobs"
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		log.Fatalf("failed to create blob store directory: %v", err)
	}
	blobs, err := blobstore.New(blobRoot)
	if err != nil {
		log.Fatalf("failed to open blob store: %v", err)
	}

	realClock := clock.Real{}
	archiver := archive.NewDiskWriter(cfg.Intake.ArchiveRoot, realClock)
	auditSink := audit.New(pool)
	vocab := vocabulary.New(cfg.Vocabulary.AsMap())

	sigPolicy, err := signaturePolicy(cfg.Intake)
	if err != nil {
		log.Fatalf("invalid signature configuration: %v", err)
	}

	recv := receiver.New(packages, vocab, auditSink, realClock, cfg.Intake.StageDir, sigPolicy)
	if cfg.Intake.VocabularyTolerance == string(receiver.ToleranceStrict) {
		recv = recv.WithVocabularyTolerance(receiver.ToleranceStrict)
	}

	ld := loader.New(staging)
	val := validator.New(staging, vocab, prod)
	det := duplicate.New(staging, prod, realClock)
	res := resolver.New(staging, prod, realClock)
	eng := commit.New(staging, claimNums, blobs, archiver, realClock)

	locker := lock.NewPackageLocker(cfg.Intake.AdvisoryLockTimeout)

	service := pipeline.New(packages, staging, conflicts, prod, auditSink, realClock, locker,
		recv, ld, val, det, res, eng)

	server := web.NewServer(service, cfg.Rate, cfg.Security)

	var watcher *watchedfolder.Watcher
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.Intake.WatchedFolderEnabled {
		watcher, err = watchedfolder.New(cfg.Intake.WatchedFolderDir, recv, uuid.Nil, slog.Default())
		if err != nil {
			log.Fatalf("failed to start watched folder: %v", err)
		}
		go watcher.Start(watchCtx)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("shutting down...")
		cancelWatch()
		if watcher != nil {
			_ = watcher.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		if err := locker.WaitForDrain(shutdownCtx); err != nil {
			log.Printf("package drain timed out: %v", err)
		}
	}()

	log.Printf("intake server starting on %s", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

// signaturePolicy translates IntakeConfig's hex-encoded public key into the
// ed25519.PublicKey the receiver's integrity gate verifies against.
func signaturePolicy(cfg config.IntakeConfig) (receiver.SignaturePolicy, error) {
	if cfg.SignaturePublicKeyHex == "" {
		if cfg.SignatureRequired {
			return receiver.SignaturePolicy{}, fmt.Errorf("INTAKE_SIGNATURE_REQUIRED is set but INTAKE_SIGNATURE_PUBLIC_KEY is empty")
		}
		return receiver.SignaturePolicy{Required: false}, nil
	}
	raw, err := hex.DecodeString(cfg.SignaturePublicKeyHex)
	if err != nil {
		return receiver.SignaturePolicy{}, fmt.Errorf("decoding signature public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return receiver.SignaturePolicy{}, fmt.Errorf("signature public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return receiver.SignaturePolicy{Required: cfg.SignatureRequired, PublicKey: ed25519.PublicKey(raw)}, nil
}
