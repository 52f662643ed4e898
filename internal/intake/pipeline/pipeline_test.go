package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/landtenure/intake/internal/intake/clock"
	"github.com/landtenure/intake/internal/intake/commit"
	"github.com/landtenure/intake/internal/intake/duplicate"
	"github.com/landtenure/intake/internal/intake/errtax"
	"github.com/landtenure/intake/internal/intake/loader"
	"github.com/landtenure/intake/internal/intake/lock"
	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/ports"
	"github.com/landtenure/intake/internal/intake/receiver"
	"github.com/landtenure/intake/internal/intake/resolver"
	"github.com/landtenure/intake/internal/intake/validator"
)

type fakePackages struct {
	mu  sync.Mutex
	byID map[uuid.UUID]*model.ImportPackage
}

func newFakePackages() *fakePackages {
	return &fakePackages{byID: map[uuid.UUID]*model.ImportPackage{}}
}
func (f *fakePackages) Create(ctx context.Context, pkg *model.ImportPackage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[pkg.ID] = pkg
	return nil
}
func (f *fakePackages) Update(ctx context.Context, pkg *model.ImportPackage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[pkg.ID] = pkg
	return nil
}
func (f *fakePackages) Get(ctx context.Context, id uuid.UUID) (*model.ImportPackage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.byID[id]
	if !ok {
		return nil, errtax.ErrNotFound
	}
	return pkg, nil
}
func (f *fakePackages) FindByPackageID(ctx context.Context, packageID uuid.UUID) (*model.ImportPackage, error) {
	for _, pkg := range f.byID {
		if pkg.PackageID == packageID {
			return pkg, nil
		}
	}
	return nil, nil
}
func (f *fakePackages) List(ctx context.Context, status model.ImportStatus, limit, offset int) ([]*model.ImportPackage, error) {
	return nil, nil
}
func (f *fakePackages) NextPackageNumber(ctx context.Context, year int) (string, error) {
	return "PKG-2026-0001", nil
}

type fakeStaging struct {
	mu   sync.Mutex
	rows map[uuid.UUID]map[model.EntityKind]map[uuid.UUID]*model.StagingRow
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{rows: map[uuid.UUID]map[model.EntityKind]map[uuid.UUID]*model.StagingRow{}}
}
func (f *fakeStaging) TruncateForReload(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[importPackageID] == nil {
		f.rows[importPackageID] = map[model.EntityKind]map[uuid.UUID]*model.StagingRow{}
	}
	f.rows[importPackageID][kind] = map[uuid.UUID]*model.StagingRow{}
	return nil
}
func (f *fakeStaging) BulkInsert(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, rows []*model.StagingRow) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[importPackageID] == nil {
		f.rows[importPackageID] = map[model.EntityKind]map[uuid.UUID]*model.StagingRow{}
	}
	if f.rows[importPackageID][kind] == nil {
		f.rows[importPackageID][kind] = map[uuid.UUID]*model.StagingRow{}
	}
	for _, r := range rows {
		f.rows[importPackageID][kind][r.OriginalEntityID] = r
	}
	return len(rows), nil
}
func (f *fakeStaging) UpdateValidation(ctx context.Context, row *model.StagingRow) error {
	return f.put(row)
}
func (f *fakeStaging) UpdateCommitState(ctx context.Context, row *model.StagingRow) error {
	return f.put(row)
}
func (f *fakeStaging) put(row *model.StagingRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[row.ImportPackageID] == nil {
		f.rows[row.ImportPackageID] = map[model.EntityKind]map[uuid.UUID]*model.StagingRow{}
	}
	if f.rows[row.ImportPackageID][row.EntityKind] == nil {
		f.rows[row.ImportPackageID][row.EntityKind] = map[uuid.UUID]*model.StagingRow{}
	}
	f.rows[row.ImportPackageID][row.EntityKind][row.OriginalEntityID] = row
	return nil
}
func (f *fakeStaging) ListByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StagingRow
	for _, r := range f.rows[importPackageID][kind] {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeStaging) ListApprovedByKind(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind) ([]*model.StagingRow, error) {
	rows, _ := f.ListByKind(ctx, importPackageID, kind)
	var out []*model.StagingRow
	for _, r := range rows {
		if r.ValidationStatus == model.ValidationValid || r.ValidationStatus == model.ValidationWarning {
			out = append(out, r)
		}
	}
	return out, nil
}
func (f *fakeStaging) Get(ctx context.Context, importPackageID uuid.UUID, kind model.EntityKind, originalEntityID uuid.UUID) (*model.StagingRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[importPackageID][kind][originalEntityID]
	if !ok {
		return nil, errtax.ErrNotFound
	}
	return row, nil
}
func (f *fakeStaging) CountByStatus(ctx context.Context, importPackageID uuid.UUID) (map[model.EntityKind]map[model.ValidationStatus]int, error) {
	return nil, nil
}
func (f *fakeStaging) DeleteForPackage(ctx context.Context, importPackageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, importPackageID)
	return nil
}

type fakeConflicts struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*model.ConflictResolution
	order []uuid.UUID
}

func newFakeConflicts() *fakeConflicts {
	return &fakeConflicts{byID: map[uuid.UUID]*model.ConflictResolution{}}
}
func (f *fakeConflicts) Create(ctx context.Context, c *model.ConflictResolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.byID[c.ID] = c
	f.order = append(f.order, c.ID)
	return nil
}
func (f *fakeConflicts) Update(ctx context.Context, c *model.ConflictResolution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = c
	return nil
}
func (f *fakeConflicts) Get(ctx context.Context, id uuid.UUID) (*model.ConflictResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errtax.ErrNotFound
	}
	return c, nil
}
func (f *fakeConflicts) ListByPackage(ctx context.Context, importPackageID uuid.UUID) ([]*model.ConflictResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ConflictResolution
	for _, id := range f.order {
		c := f.byID[id]
		if c.ImportPackageID == importPackageID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeConflicts) CountUnresolved(ctx context.Context, importPackageID uuid.UUID) (int, error) {
	cs, _ := f.ListByPackage(ctx, importPackageID)
	n := 0
	for _, c := range cs {
		if !c.IsTerminal() {
			n++
		}
	}
	return n, nil
}
func (f *fakeConflicts) DeleteByPackage(ctx context.Context, importPackageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []uuid.UUID
	for _, id := range f.order {
		if c := f.byID[id]; c.ImportPackageID == importPackageID {
			delete(f.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	f.order = kept
	return nil
}

type fakeProd struct{}

func (fakeProd) CandidatesByBlockingKey(ctx context.Context, kind model.ConflictEntityType, key string) ([]ports.ProductionCandidate, error) {
	return nil, nil
}
func (fakeProd) InsertEntity(ctx context.Context, kind model.EntityKind, originalEntityID uuid.UUID, fields map[string]any, fk map[string]uuid.UUID) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (fakeProd) ResolveProductionID(ctx context.Context, t model.ConflictEntityType, originalEntityID uuid.UUID) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}
func (fakeProd) RepointForeignKeys(ctx context.Context, t model.ConflictEntityType, discarded, master uuid.UUID) ([]string, error) {
	return []string{"claims"}, nil
}
func (fakeProd) AssignClaimNumber(ctx context.Context, claimID uuid.UUID, claimNumber string) error {
	return nil
}
func (fakeProd) WithTx(ctx context.Context, fn func(ctx context.Context, tx ports.ProductionStore) error) error {
	return fn(ctx, fakeProd{})
}

type fakeVocab struct{ versions map[string]string }

func (f fakeVocab) CurrentVersion(ctx context.Context, domain string) (string, bool) {
	v, ok := f.versions[domain]
	return v, ok
}
func (f fakeVocab) IsValidCode(ctx context.Context, domain, code string) bool { return true }
func (f fakeVocab) Domains(ctx context.Context) []string                     { return nil }

type fakeClaimNums struct{}

func (fakeClaimNums) NextClaimNumber(ctx context.Context, year int) (string, error) {
	return "CLAIM-2026-0001", nil
}

type fakeArchiveWriter struct{}

func (fakeArchiveWriter) Archive(ctx context.Context, importPackageID uuid.UUID, sourcePath string) (string, error) {
	return "/archive/" + importPackageID.String(), nil
}

func buildArchiveFile(t *testing.T, packageID uuid.UUID, vocab map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.uhc")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open archive fixture: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE manifest (
		package_id TEXT, schema_version TEXT, created_utc TEXT, exported_date_utc TEXT,
		exported_by_user_id TEXT, device_id TEXT, total_record_count INTEGER,
		total_attachment_size_bytes INTEGER, vocabulary_versions_json TEXT,
		checksum TEXT, digital_signature TEXT,
		building_count INTEGER, property_unit_count INTEGER, person_count INTEGER,
		household_count INTEGER, person_property_relation_count INTEGER,
		evidence_count INTEGER, survey_count INTEGER, claim_count INTEGER,
		document_count INTEGER, referral_count INTEGER
	);
	CREATE TABLE buildings (id TEXT PRIMARY KEY);
	CREATE TABLE property_units (id TEXT PRIMARY KEY);
	CREATE TABLE persons (id TEXT PRIMARY KEY);
	CREATE TABLE households (id TEXT PRIMARY KEY);
	CREATE TABLE person_property_relations (id TEXT PRIMARY KEY);
	CREATE TABLE evidences (id TEXT PRIMARY KEY);
	CREATE TABLE surveys (id TEXT PRIMARY KEY);
	CREATE TABLE claims (id TEXT PRIMARY KEY);
	CREATE TABLE documents (id TEXT PRIMARY KEY);
	CREATE TABLE referrals (id TEXT PRIMARY KEY);
	CREATE TABLE attachment_blobs (id TEXT PRIMARY KEY);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	vocabJSON := "{}"
	if len(vocab) > 0 {
		b := bytes.NewBufferString("{")
		first := true
		for k, v := range vocab {
			if !first {
				b.WriteString(",")
			}
			first = false
			b.WriteString(`"` + k + `":"` + v + `"`)
		}
		b.WriteString("}")
		vocabJSON = b.String()
	}

	_, err = db.Exec(
		`INSERT INTO manifest (package_id, schema_version, created_utc, exported_date_utc,
			exported_by_user_id, device_id, total_record_count, total_attachment_size_bytes,
			vocabulary_versions_json, checksum, digital_signature) VALUES
			(?, '1.0.0', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z', ?, 'device-1', 0, 0, ?, '', '')`,
		packageID.String(), uuid.New().String(), vocabJSON,
	)
	if err != nil {
		t.Fatalf("insert manifest: %v", err)
	}

	return path
}

func newTestService(t *testing.T) (*Service, *fakePackages, *fakeStaging, *fakeConflicts) {
	t.Helper()
	packages := newFakePackages()
	staging := newFakeStaging()
	conflicts := newFakeConflicts()
	vocab := fakeVocab{versions: map[string]string{"claim_status": "1.0.0"}}
	c := clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	recv := receiver.New(packages, vocab, nil, c, t.TempDir(), receiver.SignaturePolicy{Required: false})
	ld := loader.New(staging)
	val := validator.New(staging, vocab, fakeProd{})
	det := duplicate.New(staging, fakeProd{}, c)
	res := resolver.New(staging, fakeProd{}, c)
	eng := commit.New(staging, fakeClaimNums{}, nil, fakeArchiveWriter{}, c)

	svc := New(packages, staging, conflicts, fakeProd{}, nil, c, lock.NewPackageLocker(time.Second), recv, ld, val, det, res, eng)
	return svc, packages, staging, conflicts
}

func TestServiceReceiveLoadsStagedRows(t *testing.T) {
	svc, _, staging, _ := newTestService(t)

	packageID := uuid.New()
	path := buildArchiveFile(t, packageID, map[string]string{"claim_status": "1.0.0"})
	data, err := os.Open(path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer data.Close()

	pkg, err := svc.Receive(context.Background(), "source.uhc", data, model.ImportMethodManual, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkg.Status != model.StatusPending {
		t.Fatalf("expected Pending, got %v", pkg.Status)
	}

	rows, err := staging.ListByKind(context.Background(), pkg.ID, model.EntityBuilding)
	if err != nil {
		t.Fatalf("list staged rows: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected no building rows in an empty fixture, got %d", len(rows))
	}
}

func TestServiceValidateRejectsWrongState(t *testing.T) {
	svc, packages, _, _ := newTestService(t)

	pkg := model.NewImportPackage(uuid.New(), "f.uhc", 10, model.ImportMethodManual, uuid.New(), time.Now())
	pkg.Status = model.StatusCompleted
	packages.byID[pkg.ID] = pkg

	_, _, err := svc.Validate(context.Background(), pkg.ID)
	if err == nil {
		t.Fatal("expected an error validating a Completed package")
	}
}

func TestServiceCancelRejectsTerminalPackage(t *testing.T) {
	svc, packages, _, _ := newTestService(t)

	pkg := model.NewImportPackage(uuid.New(), "f.uhc", 10, model.ImportMethodManual, uuid.New(), time.Now())
	pkg.Status = model.StatusCancelled
	packages.byID[pkg.ID] = pkg

	_, err := svc.Cancel(context.Background(), pkg.ID, "operator request", false, uuid.New())
	if err == nil {
		t.Fatal("expected an error cancelling an already-cancelled package")
	}
}

func TestServiceCancelMarksPendingPackageCancelled(t *testing.T) {
	svc, packages, _, _ := newTestService(t)

	pkg := model.NewImportPackage(uuid.New(), "f.uhc", 10, model.ImportMethodManual, uuid.New(), time.Now())
	pkg.Status = model.StatusPending
	packages.byID[pkg.ID] = pkg

	got, err := svc.Cancel(context.Background(), pkg.ID, "duplicate upload", false, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("expected Cancelled, got %v", got.Status)
	}
	if got.CancellationReason != "duplicate upload" {
		t.Fatalf("expected cancellation reason to be recorded, got %q", got.CancellationReason)
	}
}

func TestServiceCancelWithCleanupStagingDeletesStagingAndConflicts(t *testing.T) {
	svc, packages, staging, conflicts := newTestService(t)

	pkg := model.NewImportPackage(uuid.New(), "f.uhc", 10, model.ImportMethodManual, uuid.New(), time.Now())
	pkg.Status = model.StatusPending
	packages.byID[pkg.ID] = pkg

	row := &model.StagingRow{
		ImportPackageID:  pkg.ID,
		EntityKind:       model.EntityPerson,
		OriginalEntityID: uuid.New(),
		ValidationStatus: model.ValidationValid,
		Fields:           map[string]any{},
	}
	if err := staging.put(row); err != nil {
		t.Fatalf("seed staging row: %v", err)
	}
	conflict := &model.ConflictResolution{ID: uuid.New(), ImportPackageID: pkg.ID, Decision: model.DecisionUnresolved}
	if err := conflicts.Create(context.Background(), conflict); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	got, err := svc.Cancel(context.Background(), pkg.ID, "bad upload", true, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("expected Cancelled, got %v", got.Status)
	}

	rows, err := staging.ListByKind(context.Background(), pkg.ID, model.EntityPerson)
	if err != nil {
		t.Fatalf("list staging: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected staging rows deleted, found %d", len(rows))
	}

	remaining, err := conflicts.ListByPackage(context.Background(), pkg.ID)
	if err != nil {
		t.Fatalf("list conflicts: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected conflicts deleted, found %d", len(remaining))
	}
}

func TestServiceResolveConflictAdvancesPackageWhenLastOneClears(t *testing.T) {
	svc, packages, staging, conflicts := newTestService(t)

	pkg := model.NewImportPackage(uuid.New(), "f.uhc", 10, model.ImportMethodManual, uuid.New(), time.Now())
	pkg.Status = model.StatusReviewingConflicts
	packages.byID[pkg.ID] = pkg

	originalID := uuid.New()
	row := &model.StagingRow{
		ID: uuid.New(), ImportPackageID: pkg.ID, OriginalEntityID: originalID,
		EntityKind: model.EntityPerson, ValidationStatus: model.ValidationValid,
		Fields: map[string]any{},
	}
	if _, err := staging.BulkInsert(context.Background(), pkg.ID, model.EntityPerson, []*model.StagingRow{row}); err != nil {
		t.Fatalf("seed staging row: %v", err)
	}

	conflict := &model.ConflictResolution{
		ID: uuid.New(), ImportPackageID: pkg.ID, EntityType: model.ConflictEntityPerson,
		StagingOriginalEntityID: originalID, Decision: model.DecisionUnresolved,
	}
	if err := conflicts.Create(context.Background(), conflict); err != nil {
		t.Fatalf("seed conflict: %v", err)
	}

	_, err := svc.ResolveConflict(context.Background(), conflict.ID, resolver.Input{
		ConflictID: conflict.ID, Decision: model.DecisionKeepSeparate,
		ReviewerID: uuid.New(), Justification: "distinct individuals confirmed by field officer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := packages.Get(context.Background(), pkg.ID)
	if err != nil {
		t.Fatalf("get package: %v", err)
	}
	if got.Status != model.StatusReadyToCommit {
		t.Fatalf("expected ReadyToCommit once the only conflict clears, got %v", got.Status)
	}
	if !got.AreConflictsResolved {
		t.Fatal("expected AreConflictsResolved to be true")
	}
}
