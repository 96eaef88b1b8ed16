// Package sqlite implements the upstream registry on a SQLite database so a
// host restart keeps its gateway configuration.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/contextify/contextify/internal/domain/gateway"
)

// Registry is the SQLite-backed upstream registry.
type Registry struct {
	db *sql.DB
}

// New opens (or creates) the registry database at the given path.
func New(ctx context.Context, path string) (*Registry, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS upstreams (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL UNIQUE,
			namespace_prefix TEXT NOT NULL UNIQUE,
			endpoint         TEXT NOT NULL,
			enabled          INTEGER NOT NULL DEFAULT 1,
			request_timeout_ms INTEGER NOT NULL DEFAULT 0,
			default_headers  TEXT NOT NULL DEFAULT '{}',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create upstreams table: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close releases the database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

const upstreamColumns = `id, name, namespace_prefix, endpoint, enabled, request_timeout_ms, default_headers, created_at, updated_at`

// List returns all upstreams ordered by name.
func (r *Registry) List(ctx context.Context) ([]gateway.Upstream, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+upstreamColumns+` FROM upstreams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list upstreams: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []gateway.Upstream
	for rows.Next() {
		u, err := scanUpstream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Get returns the upstream with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*gateway.Upstream, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+upstreamColumns+` FROM upstreams WHERE id = ?`, id)
	u, err := scanUpstream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gateway.ErrUpstreamNotFound
	}
	return u, err
}

// Add stores a new upstream, assigning a UUID when the id is empty.
func (r *Registry) Add(ctx context.Context, u *gateway.Upstream) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	headers, err := json.Marshal(headersOrEmpty(u.DefaultHeaders))
	if err != nil {
		return fmt.Errorf("encode default headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO upstreams (`+upstreamColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.NamespacePrefix, u.Endpoint, boolToInt(u.Enabled),
		u.RequestTimeout.Milliseconds(), string(headers),
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt),
	)
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

// Update replaces an existing upstream.
func (r *Registry) Update(ctx context.Context, u *gateway.Upstream) error {
	if err := u.Validate(); err != nil {
		return err
	}
	headers, err := json.Marshal(headersOrEmpty(u.DefaultHeaders))
	if err != nil {
		return fmt.Errorf("encode default headers: %w", err)
	}
	u.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE upstreams
		SET name = ?, namespace_prefix = ?, endpoint = ?, enabled = ?,
		    request_timeout_ms = ?, default_headers = ?, updated_at = ?
		WHERE id = ?`,
		u.Name, u.NamespacePrefix, u.Endpoint, boolToInt(u.Enabled),
		u.RequestTimeout.Milliseconds(), string(headers),
		formatTime(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return mapConstraintError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrUpstreamNotFound
	}
	return nil
}

// Delete removes an upstream by id.
func (r *Registry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upstreams WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete upstream: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gateway.ErrUpstreamNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUpstream(s scanner) (*gateway.Upstream, error) {
	var (
		u         gateway.Upstream
		enabled   int
		timeoutMs int64
		headers   string
		created   string
		updated   string
	)
	if err := s.Scan(&u.ID, &u.Name, &u.NamespacePrefix, &u.Endpoint,
		&enabled, &timeoutMs, &headers, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan upstream: %w", err)
	}

	u.Enabled = enabled != 0
	u.RequestTimeout = time.Duration(timeoutMs) * time.Millisecond
	if err := json.Unmarshal([]byte(headers), &u.DefaultHeaders); err != nil {
		return nil, fmt.Errorf("decode default headers: %w", err)
	}
	if len(u.DefaultHeaders) == 0 {
		u.DefaultHeaders = nil
	}

	var err error
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &u, nil
}

func headersOrEmpty(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// mapConstraintError translates SQLite unique-constraint failures into the
// registry's sentinel errors.
func mapConstraintError(err error) error {
	// "upstreams.name" is a prefix of "upstreams.namespace_prefix", so the
	// prefix column has to be checked first.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "upstreams.namespace_prefix"):
		return gateway.ErrDuplicatePrefix
	case strings.Contains(msg, "upstreams.name"):
		return gateway.ErrDuplicateName
	default:
		return err
	}
}

// Compile-time check that Registry satisfies the port.
var _ gateway.Registry = (*Registry)(nil)
