package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	tendlc "github.com/goliatone/go-tendlc"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if reg.SourceLabel != "go-tendlc" {
		t.Fatalf("expected default source label, got %q", reg.SourceLabel)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestFilesystems_ReportsMissingDownMigration(t *testing.T) {
	source := fstest.MapFS{}
	for _, version := range Required {
		for _, dir := range []string{"data/sql/migrations/", "data/sql/migrations/sqlite/"} {
			source[dir+version+".up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
			source[dir+version+".down.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
		}
	}
	if _, err := Filesystems(source); err != nil {
		t.Fatalf("expected complete tree to resolve: %v", err)
	}

	delete(source, "data/sql/migrations/sqlite/00002_tendlc_jobs.down.sql")
	_, err := Filesystems(source)
	if err == nil || !strings.Contains(err.Error(), "00002_tendlc_jobs.down.sql") {
		t.Fatalf("expected missing sqlite down migration to be reported, got %v", err)
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := tendlc.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_tendlc_registrations.up.sql",
		"data/sql/migrations/00001_tendlc_registrations.down.sql",
		"data/sql/migrations/sqlite/00001_tendlc_registrations.up.sql",
		"data/sql/migrations/sqlite/00001_tendlc_registrations.down.sql",
		"data/sql/migrations/00002_tendlc_jobs.up.sql",
		"data/sql/migrations/00002_tendlc_jobs.down.sql",
		"data/sql/migrations/sqlite/00002_tendlc_jobs.up.sql",
		"data/sql/migrations/sqlite/00002_tendlc_jobs.down.sql",
		"data/sql/migrations/00003_tendlc_jobs_active_idempotency.up.sql",
		"data/sql/migrations/00003_tendlc_jobs_active_idempotency.down.sql",
		"data/sql/migrations/sqlite/00003_tendlc_jobs_active_idempotency.up.sql",
		"data/sql/migrations/sqlite/00003_tendlc_jobs_active_idempotency.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteRegistrationMigration_EnforcesOneRecordPerTenant(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-registrations?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(tendlc.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_tendlc_registrations.up.sql"); err != nil {
		t.Fatalf("apply registrations up: %v", err)
	}

	insert := `INSERT INTO tendlc_registrations (id, tenant_id, status) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "r1", "tenant_1", "pending"); err != nil {
		t.Fatalf("insert first record: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "r2", "tenant_1", "pending"); err == nil {
		t.Fatalf("expected second record for the same tenant to violate the unique index")
	}
	if _, err := db.ExecContext(ctx, insert, "r3", "tenant_2", "verified"); err == nil {
		t.Fatalf("expected unknown status to violate the check constraint")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_tendlc_registrations.down.sql"); err != nil {
		t.Fatalf("apply registrations down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"tendlc_registrations",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected tendlc_registrations to be dropped after down migration")
	}
}

func TestSQLiteJobsMigration_DeduplicatesIdempotencyKeys(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-jobs?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(tendlc.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_tendlc_jobs.up.sql"); err != nil {
		t.Fatalf("apply jobs up: %v", err)
	}

	insert := `INSERT INTO tendlc_jobs (id, job_id, idempotency_key) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "j1", "tendlc.webhook.process", "webhook:evt_1"); err != nil {
		t.Fatalf("insert first job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "j2", "tendlc.webhook.process", "webhook:evt_1"); err == nil {
		t.Fatalf("expected duplicate idempotency key to be rejected")
	}
	if _, err := db.ExecContext(ctx, insert, "j3", "tendlc.webhook.process", nil); err != nil {
		t.Fatalf("insert keyless job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "j4", "tendlc.webhook.process", nil); err != nil {
		t.Fatalf("expected keyless jobs to coexist: %v", err)
	}
}

func TestSQLiteJobsMigration_ReleasesKeysOfFinishedJobs(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-jobs-active?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(tendlc.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	for _, name := range []string{"00002_tendlc_jobs.up.sql", "00003_tendlc_jobs_active_idempotency.up.sql"} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, name); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}

	insert := `INSERT INTO tendlc_jobs (id, job_id, idempotency_key, status) VALUES (?, ?, ?, ?)`
	key := "campaign.submit:t1:B1"
	if _, err := db.ExecContext(ctx, insert, "j1", "tendlc.campaign.submit", key, "pending"); err != nil {
		t.Fatalf("insert first job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "j2", "tendlc.campaign.submit", key, "pending"); err == nil {
		t.Fatalf("expected duplicate key of a pending job to be rejected")
	}
	if _, err := db.ExecContext(ctx, `UPDATE tendlc_jobs SET status = 'dead' WHERE id = ?`, "j1"); err != nil {
		t.Fatalf("dead-letter first job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "j3", "tendlc.campaign.submit", key, "pending"); err != nil {
		t.Fatalf("expected key of a dead job to be reusable: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "j4", "tendlc.campaign.submit", key, "done"); err != nil {
		t.Fatalf("expected finished rows to share a key: %v", err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
