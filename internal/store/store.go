// Package store persists swipes, onboarding preferences, and Neynar
// signer credentials in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/whycore/basefriends/internal/model"
)

// ErrNoSigner is returned when the viewer has no active signer; callers
// should instruct the client to (re-)authorize.
var ErrNoSigner = errors.New("store: no active signer")

// DB wraps the SQLite database.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// Ping verifies the connection, for health checks.
func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS swipes (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  from_fid INTEGER NOT NULL,
	  to_fid INTEGER NOT NULL,
	  action TEXT NOT NULL,
	  created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_swipes_from ON swipes(from_fid);
	CREATE TABLE IF NOT EXISTS preferences (
	  fid INTEGER PRIMARY KEY,
	  headline TEXT NOT NULL DEFAULT '',
	  interests TEXT NOT NULL DEFAULT '',
	  skills TEXT NOT NULL DEFAULT '',
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS signers (
	  fid INTEGER PRIMARY KEY,
	  signer_uuid TEXT NOT NULL,
	  public_key TEXT NOT NULL DEFAULT '',
	  status TEXT NOT NULL DEFAULT 'active',
	  expires_at INTEGER,
	  updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// RecordSwipe stores one viewer decision.
func (d *DB) RecordSwipe(ctx context.Context, s model.Swipe) error {
	ts := s.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO swipes(from_fid, to_fid, action, created_at) VALUES(?,?,?,?)`,
		s.FromFID, s.ToFID, s.Action, ts.Unix())
	return err
}

// SeenFIDs returns the set of FIDs the viewer already acted on.
func (d *DB) SeenFIDs(ctx context.Context, viewerFID int64) (map[int64]struct{}, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT DISTINCT to_fid FROM swipes WHERE from_fid=?`, viewerFID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := make(map[int64]struct{})
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, err
		}
		seen[fid] = struct{}{}
	}
	return seen, rows.Err()
}

// UpsertPreferences writes the viewer's onboarding keywords.
func (d *DB) UpsertPreferences(ctx context.Context, p model.Preferences) error {
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO preferences(fid, headline, interests, skills, updated_at) VALUES(?,?,?,?,?)
	ON CONFLICT(fid) DO UPDATE SET headline=excluded.headline, interests=excluded.interests,
	  skills=excluded.skills, updated_at=excluded.updated_at`,
		p.FID, p.Headline, p.Interests, p.Skills, time.Now().UTC().Unix())
	return err
}

// GetPreferences loads the viewer's preferences; a viewer with none gets a
// zero-value record, not an error.
func (d *DB) GetPreferences(ctx context.Context, fid int64) (model.Preferences, error) {
	var p model.Preferences
	var updated int64
	err := d.sql.QueryRowContext(ctx,
		`SELECT fid, headline, interests, skills, updated_at FROM preferences WHERE fid=?`, fid).
		Scan(&p.FID, &p.Headline, &p.Interests, &p.Skills, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Preferences{FID: fid}, nil
	}
	if err != nil {
		return p, err
	}
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}

// UpsertSigner stores or refreshes the viewer's signer credential.
func (d *DB) UpsertSigner(ctx context.Context, s model.Signer) error {
	var expires *int64
	if s.ExpiresAt != nil {
		v := s.ExpiresAt.Unix()
		expires = &v
	}
	status := s.Status
	if status == "" {
		status = model.SignerActive
	}
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO signers(fid, signer_uuid, public_key, status, expires_at, updated_at) VALUES(?,?,?,?,?,?)
	ON CONFLICT(fid) DO UPDATE SET signer_uuid=excluded.signer_uuid, public_key=excluded.public_key,
	  status=excluded.status, expires_at=excluded.expires_at, updated_at=excluded.updated_at`,
		s.FID, s.SignerUUID, s.PublicKey, status, expires, time.Now().UTC().Unix())
	return err
}

// GetSigner returns the viewer's active signer. An expired record is marked
// expired and reported as ErrNoSigner.
func (d *DB) GetSigner(ctx context.Context, fid int64) (model.Signer, error) {
	var s model.Signer
	var expires sql.NullInt64
	var updated int64
	err := d.sql.QueryRowContext(ctx,
		`SELECT fid, signer_uuid, public_key, status, expires_at, updated_at FROM signers WHERE fid=?`, fid).
		Scan(&s.FID, &s.SignerUUID, &s.PublicKey, &s.Status, &expires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNoSigner
	}
	if err != nil {
		return s, err
	}
	if s.Status != model.SignerActive {
		return s, ErrNoSigner
	}
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		s.ExpiresAt = &t
		if t.Before(time.Now().UTC()) {
			_, _ = d.sql.ExecContext(ctx,
				`UPDATE signers SET status=?, updated_at=? WHERE fid=?`,
				model.SignerExpired, time.Now().UTC().Unix(), fid)
			return s, ErrNoSigner
		}
	}
	s.UpdatedAt = time.Unix(updated, 0).UTC()
	return s, nil
}

// RevokeSigner marks the viewer's active signer revoked.
func (d *DB) RevokeSigner(ctx context.Context, fid int64) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE signers SET status=?, updated_at=? WHERE fid=? AND status=?`,
		model.SignerRevoked, time.Now().UTC().Unix(), fid, model.SignerActive)
	return err
}
