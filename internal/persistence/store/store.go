// Package store implements the observation gateway on top of database/sql.
// SQLite is the default backend; Postgres is available for shared deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldnotes.ai/internal/observation"
)

var (
	_ observation.Gateway       = (*SQLStore)(nil)
	_ observation.ExpiryUpdater = (*SQLStore)(nil)
	_ observation.Loader        = (*SQLStore)(nil)
)

// dialect holds per-driver differences. rebind rewrites "?" placeholders for drivers
// that need positional ones.
type dialect struct {
	name   string
	rebind func(q string) string
}

// schemaVersion is stored in meta.schema_version. Version 2 added create_key.
const schemaVersion = 2

// deactivateChunk caps the placeholders in one UPDATE.
var deactivateChunk = 500

// SQLStore persists observation records in a single "observations" table.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

const recordColumns = `id,create_key,created_at_ms,author,world,x,y,z,fx,fy,fz,text,expires_at_ms`

func (s *SQLStore) q(query string) string {
	if s.d.rebind == nil {
		return query
	}
	return s.d.rebind(query)
}

func initSchema(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// checkSchemaVersion brings an existing database up to schemaVersion using upgrades
// (keyed by target version) and records the version in meta. A newer database is refused.
func checkSchemaVersion(ctx context.Context, db *sql.DB, rebind func(string) string, upgrades map[int][]string) error {
	q := func(s string) string {
		if rebind == nil {
			return s
		}
		return rebind(s)
	}
	var raw string
	cur := 0
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	default:
		cur, err = strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("bad schema version %q", raw)
		}
	}
	if cur > schemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", cur, schemaVersion)
	}
	if cur > 0 {
		for v := cur + 1; v <= schemaVersion; v++ {
			if err := initSchema(ctx, db, upgrades[v]); err != nil {
				return fmt.Errorf("upgrade to %d: %w", v, err)
			}
		}
	}
	if cur == schemaVersion {
		return nil
	}
	_, err = db.ExecContext(ctx, q(`INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`), strconv.Itoa(schemaVersion))
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// SchemaVersion reports the version recorded in meta.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version'`).Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the handle for admin tooling and tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Backend() string { return s.d.name }

func millis(t time.Time) int64 { return t.UnixMilli() }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StoreNew inserts rec. A record whose Key is already stored is not inserted again;
// its existing id is returned instead.
func (s *SQLStore) StoreNew(ctx context.Context, rec observation.Record) (int64, error) {
	src := rec.Source
	row := s.db.QueryRowContext(ctx, s.q(`INSERT INTO observations(create_key,created_at_ms,author,world,x,y,z,fx,fy,fz,text,expires_at_ms,active)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,1) ON CONFLICT(create_key) DO NOTHING RETURNING id`),
		nullString(rec.Key), millis(rec.CreatedAt), rec.Author, src.World,
		src.Pos.X, src.Pos.Y, src.Pos.Z,
		src.Facing.X, src.Facing.Y, src.Facing.Z,
		rec.Text, nullMillis(rec.ExpiresAt),
	)
	var id int64
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) && rec.Key != "" {
		err = s.db.QueryRowContext(ctx, s.q(`SELECT id FROM observations WHERE create_key=?`), rec.Key).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("insert observation: %w", err)
	}
	return id, nil
}

func (s *SQLStore) DeactivateOne(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE observations SET active=0 WHERE id=?`), id); err != nil {
		return fmt.Errorf("deactivate observation %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) DeactivateMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("deactivate %d observations: %w", len(ids), err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(ids); start += deactivateChunk {
		chunk := ids[start:min(start+deactivateChunk, len(ids))]
		marks := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		res, err := tx.ExecContext(ctx, s.q(`UPDATE observations SET active=0 WHERE active=1 AND id IN (`+marks+`)`), args...)
		if err != nil {
			return 0, fmt.Errorf("deactivate %d observations: %w", len(ids), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("deactivate %d observations: %w", len(ids), err)
	}
	return total, nil
}

func (s *SQLStore) UpdateExpiration(ctx context.Context, id int64, expiresAt *time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE observations SET expires_at_ms=? WHERE id=?`), nullMillis(expiresAt), id); err != nil {
		return fmt.Errorf("update expiration of %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) LoadActive(ctx context.Context) ([]observation.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM observations WHERE active=1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select observations: %w", err)
	}
	defer rows.Close()

	var out []observation.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeactivateExpired marks every active record whose expiry is at or before now inactive.
func (s *SQLStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE observations SET active=0 WHERE active=1 AND expires_at_ms IS NOT NULL AND expires_at_ms<=?`), millis(now))
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return res.RowsAffected()
}

// PurgeInactive deletes inactive records and returns how many were removed.
func (s *SQLStore) PurgeInactive(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE active=0`)
	if err != nil {
		return 0, fmt.Errorf("purge inactive: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (observation.Record, error) {
	var (
		rec     observation.Record
		key     sql.NullString
		created int64
		expires sql.NullInt64
	)
	src := &rec.Source
	if err := sc.Scan(&rec.ID, &key, &created, &rec.Author, &src.World,
		&src.Pos.X, &src.Pos.Y, &src.Pos.Z,
		&src.Facing.X, &src.Facing.Y, &src.Facing.Z,
		&rec.Text, &expires); err != nil {
		return rec, fmt.Errorf("scan observation: %w", err)
	}
	rec.Key = key.String
	rec.CreatedAt = time.UnixMilli(created).UTC()
	if expires.Valid {
		t := time.UnixMilli(expires.Int64).UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}

// rebindDollar turns "?" placeholders into "$1", "$2", ...
func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
