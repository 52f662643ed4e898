// Command intakectl is the operator CLI for the package-intake pipeline: a
// direct-to-database counterpart to intaked for actions an operator runs
// out-of-band from the HTTP API (inspecting a package's current state,
// force-cancelling one that is stuck, or driving a conflict decision by
// hand). It builds the same pipeline.Service intaked serves over HTTP and
// calls its stage methods directly, so a CLI-driven cancel or resolve goes
// through the identical advisory-lock and state-machine guards an HTTP
// request would. It generalizes the teacher's internal/admin.ResetDbs (a
// destructive operation wrapped in a bounded context) from a bubbletea
// tea.Cmd into a flag-dispatched subcommand, since bubbletea is imported by
// internal/admin and internal/application but was never added to the
// teacher's own go.mod require block, and an interactive menu has no
// natural fit for a scriptable operator tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

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
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/pipeline"
	"github.com/landtenure/intake/internal/intake/receiver"
	"github.com/landtenure/intake/internal/intake/repository"
	"github.com/landtenure/intake/internal/intake/resolver"
	"github.com/landtenure/intake/internal/intake/validator"
	"github.com/landtenure/intake/internal/intake/vocabulary"
)

// commandTimeout bounds every subcommand's database work, the same
// fixed-ceiling shape as the teacher's admin.ResetTimeout.
const commandTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Overload()
	cfg := config.MustLoad()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	service := buildService(pool, cfg)

	switch os.Args[1] {
	case "inspect":
		runInspect(ctx, service, os.Args[2:])
	case "cancel":
		runCancel(ctx, service, os.Args[2:])
	case "resolve-conflict":
		runResolveConflict(ctx, service, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "intakectl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

// buildService assembles the same collaborator graph intaked serves over
// HTTP, so every subcommand enforces the identical locking and
// state-machine rules an API call would.
func buildService(pool *pgxpool.Pool, cfg *config.Config) *pipeline.Service {
	packages := repository.NewImportPackageStore(pool)
	staging := repository.NewStagingStore(pool)
	conflicts := repository.NewConflictStore(pool)
	prod := repository.NewProductionStore(pool)
	claimNums := repository.NewClaimNumberGenerator(pool)

	blobs, err := blobstore.New(cfg.Intake.ArchiveRoot + "/blobs")
	if err != nil {
		log.Fatalf("opening blob store: %v", err)
	}

	realClock := clock.Real{}
	archiver := archive.NewDiskWriter(cfg.Intake.ArchiveRoot, realClock)
	auditSink := audit.New(pool)
	vocab := vocabulary.New(cfg.Vocabulary.AsMap())

	recv := receiver.New(packages, vocab, auditSink, realClock, cfg.Intake.StageDir, receiver.SignaturePolicy{})
	ld := loader.New(staging)
	val := validator.New(staging, vocab, prod)
	det := duplicate.New(staging, prod, realClock)
	res := resolver.New(staging, prod, realClock)
	eng := commit.New(staging, claimNums, blobs, archiver, realClock)
	locker := lock.NewPackageLocker(cfg.Intake.AdvisoryLockTimeout)

	return pipeline.New(packages, staging, conflicts, prod, auditSink, realClock, locker,
		recv, ld, val, det, res, eng)
}

func usage() {
	fmt.Fprintln(os.Stderr, `intakectl <command> [flags]

Commands:
  inspect -id <package-id>
        print an import package's current state

  cancel -id <package-id> -reason <text> -actor <uuid> [-cleanup-staging]
        force-cancel a package outside its normal lifecycle;
        -cleanup-staging deletes its staging rows and conflict records

  resolve-conflict -id <conflict-id> -decision <Merge|LinkToExisting|KeepSeparate|CreateNew>
                    -reviewer <uuid> [-master <uuid>] [-note <text>]
        apply a conflict decision by hand`)
}

func runInspect(ctx context.Context, service *pipeline.Service, args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	id := fs.String("id", "", "import package id")
	fs.Parse(args)

	pkgID, err := uuid.Parse(*id)
	if err != nil {
		log.Fatalf("invalid -id: %v", err)
	}
	pkg, err := service.Get(ctx, pkgID)
	if err != nil {
		log.Fatalf("looking up package: %v", err)
	}

	fmt.Printf("package %s (%s)\n", pkg.PackageNumber, pkg.ID)
	fmt.Printf("  status:              %s\n", pkg.Status)
	fmt.Printf("  file:                %s (%d bytes)\n", pkg.FileName, pkg.SizeBytes)
	fmt.Printf("  checksum valid:      %v\n", pkg.IsChecksumValid)
	fmt.Printf("  signature valid:     %v\n", pkg.IsSignatureValid)
	fmt.Printf("  validation errors:   %d\n", pkg.ValidationErrorCount)
	fmt.Printf("  validation warnings: %d\n", pkg.ValidationWarningCount)
	fmt.Printf("  conflicts:           %d (resolved: %v)\n", pkg.ConflictCount, pkg.AreConflictsResolved)
	fmt.Printf("  committed counts:    %v\n", pkg.CommittedCounts)
	fmt.Printf("  failed counts:       %v\n", pkg.FailedCounts)
	if pkg.QuarantineReason != "" {
		fmt.Printf("  quarantine reason:   %s\n", pkg.QuarantineReason)
	}
	if pkg.CancellationReason != "" {
		fmt.Printf("  cancellation reason: %s\n", pkg.CancellationReason)
	}
}

func runCancel(ctx context.Context, service *pipeline.Service, args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	id := fs.String("id", "", "import package id")
	reason := fs.String("reason", "", "cancellation reason")
	actor := fs.String("actor", "", "operator user id")
	cleanupStaging := fs.Bool("cleanup-staging", false, "delete staging rows and conflicts for this package")
	fs.Parse(args)

	pkgID, err := uuid.Parse(*id)
	if err != nil {
		log.Fatalf("invalid -id: %v", err)
	}
	actorID, err := uuid.Parse(*actor)
	if err != nil {
		log.Fatalf("invalid -actor: %v", err)
	}
	if *reason == "" {
		log.Fatal("-reason is required")
	}

	pkg, err := service.Cancel(ctx, pkgID, *reason, *cleanupStaging, actorID)
	if err != nil {
		log.Fatalf("cancelling package: %v", err)
	}
	fmt.Printf("package %s cancelled\n", pkg.PackageNumber)
}

func runResolveConflict(ctx context.Context, service *pipeline.Service, args []string) {
	fs := flag.NewFlagSet("resolve-conflict", flag.ExitOnError)
	id := fs.String("id", "", "conflict id")
	decision := fs.String("decision", "", "Merge|LinkToExisting|KeepSeparate|CreateNew")
	reviewer := fs.String("reviewer", "", "reviewing operator user id")
	master := fs.String("master", "", "chosen master entity id (Merge/LinkToExisting)")
	note := fs.String("note", "", "justification")
	fs.Parse(args)

	conflictID, err := uuid.Parse(*id)
	if err != nil {
		log.Fatalf("invalid -id: %v", err)
	}
	reviewerID, err := uuid.Parse(*reviewer)
	if err != nil {
		log.Fatalf("invalid -reviewer: %v", err)
	}

	var masterID *uuid.UUID
	if *master != "" {
		m, err := uuid.Parse(*master)
		if err != nil {
			log.Fatalf("invalid -master: %v", err)
		}
		masterID = &m
	}

	result, err := service.ResolveConflict(ctx, conflictID, resolver.Input{
		ConflictID:     conflictID,
		Decision:       model.ConflictDecision(*decision),
		ChosenMasterID: masterID,
		ReviewerID:     reviewerID,
		Justification:  *note,
	})
	if err != nil {
		log.Fatalf("resolving conflict: %v", err)
	}
	fmt.Printf("conflict %s resolved: %s\n", conflictID, result.Decision)
}
