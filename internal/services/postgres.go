package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/CloudCabinet/Drive-Service/internal/models"
)

// PostgresService holds the metadata catalog, the session table and the
// activity log. The catalog is a derived, rebuildable projection of the
// object store; the reconcile sweep is the repair path when the two
// diverge.
type PostgresService struct {
	db *sql.DB
}

var postgresInstance *PostgresService

// InitializePostgres sets up the PostgreSQL connection and schema.
func InitializePostgres(connectionString string) error {
	pg := &PostgresService{}
	if err := pg.connect(connectionString); err != nil {
		return err
	}
	postgresInstance = pg
	return nil
}

func GetPostgresService() *PostgresService {
	return postgresInstance
}

func (p *PostgresService) connect(connectionString string) error {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p.db = db

	if err := p.createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %v", err)
	}

	log.Println("[DB] Connected to PostgreSQL successfully")
	return nil
}

func (p *PostgresService) createTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS metadata_records (
        file_path TEXT PRIMARY KEY,
        file_name TEXT NOT NULL,
        size BIGINT NOT NULL DEFAULT 0,
        is_folder BOOLEAN NOT NULL DEFAULT false,
        owner_id TEXT,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );

    CREATE TABLE IF NOT EXISTS activity_log (
        id BIGSERIAL PRIMARY KEY,
        action VARCHAR(50) NOT NULL,
        file_path TEXT NOT NULL,
        file_name TEXT NOT NULL,
        details TEXT,
        user_id TEXT,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );

    CREATE TABLE IF NOT EXISTS sessions (
        token UUID PRIMARY KEY,
        user_id TEXT NOT NULL,
        email TEXT NOT NULL DEFAULT '',
        role TEXT NOT NULL DEFAULT '',
        expires_at TIMESTAMPTZ NOT NULL
    );
    `
	if _, err := p.db.Exec(query); err != nil {
		return err
	}

	// text_pattern_ops lets the prefix LIKE scans use the index instead of
	// walking the whole catalog on every listing.
	indexQuery := `
    CREATE INDEX IF NOT EXISTS idx_metadata_records_path_prefix ON metadata_records(file_path text_pattern_ops);
    CREATE INDEX IF NOT EXISTS idx_metadata_records_owner ON metadata_records(owner_id);
    CREATE INDEX IF NOT EXISTS idx_activity_log_user ON activity_log(user_id, created_at DESC);
    CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
    `
	_, err := p.db.Exec(indexQuery)
	return err
}

// CheckConnection is used by the health endpoint.
func (p *PostgresService) CheckConnection() error {
	if p == nil || p.db == nil {
		return fmt.Errorf("postgres service not initialized")
	}
	return p.db.Ping()
}

// escapeLikePrefix escapes LIKE pattern metacharacters so a prefix is
// matched literally. Keys may legitimately contain '%' or '_'.
func escapeLikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}

// --- metadata catalog ---

// UpsertRecord inserts or replaces the record keyed by file_path. A NULL
// incoming owner keeps the previously recorded owner, which is what lets
// the reconcile sweep rebuild records without wiping attribution.
func (p *PostgresService) UpsertRecord(ctx context.Context, rec models.MetadataRecord) error {
	query := `
    INSERT INTO metadata_records (file_path, file_name, size, is_folder, owner_id, updated_at)
    VALUES ($1, $2, $3, $4, $5, NOW())
    ON CONFLICT (file_path) DO UPDATE SET
        file_name = EXCLUDED.file_name,
        size = EXCLUDED.size,
        is_folder = EXCLUDED.is_folder,
        owner_id = COALESCE(EXCLUDED.owner_id, metadata_records.owner_id),
        updated_at = NOW()
    `
	_, err := p.db.ExecContext(ctx, query,
		rec.FilePath,
		rec.FileName,
		rec.Size,
		rec.IsFolder,
		nullString(rec.OwnerID),
	)
	return err
}

// FindByPrefix returns every record whose file_path starts with the
// literal prefix, ascending by path.
func (p *PostgresService) FindByPrefix(ctx context.Context, prefix string) ([]models.MetadataRecord, error) {
	query := `
    SELECT file_path, file_name, size, is_folder, owner_id, updated_at
    FROM metadata_records
    WHERE file_path LIKE $1 ESCAPE '\'
    ORDER BY file_path ASC
    `
	rows, err := p.db.QueryContext(ctx, query, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			log.Printf("[DB] Error scanning metadata row: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FindByOwner returns every record attributed to ownerID.
func (p *PostgresService) FindByOwner(ctx context.Context, ownerID string) ([]models.MetadataRecord, error) {
	query := `
    SELECT file_path, file_name, size, is_folder, owner_id, updated_at
    FROM metadata_records
    WHERE owner_id = $1
    ORDER BY file_path ASC
    `
	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MetadataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			log.Printf("[DB] Error scanning metadata row: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteByPrefix removes every record whose file_path starts with the
// literal prefix, mirroring a prefix delete against the store.
func (p *PostgresService) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM metadata_records WHERE file_path LIKE $1 ESCAPE '\'`,
		escapeLikePrefix(prefix)+"%",
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteOne removes a single record. Deleting an absent record is not an
// error.
func (p *PostgresService) DeleteOne(ctx context.Context, filePath string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM metadata_records WHERE file_path = $1`, filePath)
	return err
}

// Stats reports catalog totals for the stats endpoint.
func (p *PostgresService) Stats(ctx context.Context) (int64, int64, error) {
	var count, total int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM metadata_records WHERE is_folder = false`,
	).Scan(&count, &total)
	return count, total, err
}

func scanRecord(rows *sql.Rows) (models.MetadataRecord, error) {
	var rec models.MetadataRecord
	var owner sql.NullString
	err := rows.Scan(&rec.FilePath, &rec.FileName, &rec.Size, &rec.IsFolder, &owner, &rec.UpdatedAt)
	if err != nil {
		return models.MetadataRecord{}, err
	}
	rec.OwnerID = owner.String
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// --- sessions ---

func (p *PostgresService) CreateSession(ctx context.Context, s models.Session) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, email, role, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		s.Token, s.UserID, s.Email, s.Role, s.ExpiresAt,
	)
	return err
}

// GetSession resolves a token. Expired sessions are deleted on sight and
// reported as absent.
func (p *PostgresService) GetSession(ctx context.Context, token string) (models.Session, bool, error) {
	var s models.Session
	err := p.db.QueryRowContext(ctx,
		`SELECT token, user_id, email, role, expires_at FROM sessions WHERE token = $1`,
		token,
	).Scan(&s.Token, &s.UserID, &s.Email, &s.Role, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, false, nil
	}
	if err != nil {
		return models.Session{}, false, err
	}
	if time.Now().After(s.ExpiresAt) {
		if err := p.DeleteSession(ctx, token); err != nil {
			log.Printf("[DB] Failed to delete expired session: %v", err)
		}
		return models.Session{}, false, nil
	}
	return s, true, nil
}

func (p *PostgresService) DeleteSession(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// DeleteExpiredSessions is run by the periodic sweep.
func (p *PostgresService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- activity log ---

// InsertActivity appends one audit entry. Entries are never updated or
// deleted by normal operation.
func (p *PostgresService) InsertActivity(ctx context.Context, e models.ActivityEntry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO activity_log (action, file_path, file_name, details, user_id) VALUES ($1, $2, $3, $4, $5)`,
		e.Action, e.FilePath, e.FileName, nullString(e.Details), nullString(e.UserID),
	)
	return err
}

// RecentActivity returns the newest entries for a user.
func (p *PostgresService) RecentActivity(ctx context.Context, userID string, limit int) ([]models.ActivityEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, action, file_path, file_name, details, user_id, created_at
         FROM activity_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		var details, user sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.FilePath, &e.FileName, &details, &user, &e.CreatedAt); err != nil {
			log.Printf("[DB] Error scanning activity row: %v", err)
			continue
		}
		e.Details = details.String
		e.UserID = user.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
