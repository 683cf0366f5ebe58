// Package relational implements the "Postgres" DatabaseAdapter kind
// (spec §4.5): a read-only, parameterized query against a pooled
// Postgres connection. Settings come from spec §6's documented
// `{user, password, host, port, dbname, fields}` table; the table
// queried is the provider's own configured name (a relational adapter
// already encodes its one entity, per spec §4.8) and the id column is
// `fields`' first element, the "conventional default when no explicit
// id column is given" spec §4.5 describes.
package relational

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/prismcache/prismcache/internal/adapter"
)

// identifierPattern bounds what may appear as a column or table name
// that gets interpolated into SQL text (fields and entity come from
// adapter configuration, not from client input, but a pool-wide query
// built from an unvalidated name is still a foot-gun worth closing).
// Mirrors the column-name allowlist hyperengineering-engram's plugin
// registry validates at registration time.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config holds the connection and schema parameters for one Postgres
// provider.
type Config struct {
	// DSN is built by the caller from the settings table's
	// user/password/host/port/dbname keys (spec §6).
	DSN string
	// Entity is the table queried — the provider's own name.
	Entity string
	// Fields is the settings table's ordered, comma-separated `fields`
	// list. Fields[0] doubles as the id column per spec §4.5.
	Fields []string

	ConnectTimeout time.Duration
}

// Adapter queries a single Postgres table through a pooled connection.
// Per-request query timeouts are the facade's responsibility (spec §5:
// "each adapter fetch runs under a per-request timeout"), not this
// adapter's — it runs every query under whatever deadline ctx already
// carries.
type Adapter struct {
	pool     *pgxpool.Pool
	entity   string
	idColumn string
	fields   []string
}

// New validates cfg, opens a connection pool with retry, and returns an
// Adapter ready to serve FetchFields. The initial connect is retried
// with backoff since a database that is still starting up should not
// fail the whole process at boot.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("%w: relational provider %q needs a non-empty fields list", adapter.ErrConfiguration, cfg.Entity)
	}
	if !identifierPattern.MatchString(cfg.Entity) {
		return nil, fmt.Errorf("%w: entity %q is not a valid identifier", adapter.ErrConfiguration, cfg.Entity)
	}
	idColumn := cfg.Fields[0]
	if !identifierPattern.MatchString(idColumn) {
		return nil, fmt.Errorf("%w: id column %q is not a valid identifier", adapter.ErrConfiguration, idColumn)
	}
	for _, f := range cfg.Fields {
		if !identifierPattern.MatchString(f) {
			return nil, fmt.Errorf("%w: field %q is not a valid identifier", adapter.ErrConfiguration, f)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrConfiguration, err)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			p, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
			if err != nil {
				return err
			}
			if err := p.Ping(connectCtx); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrBackendUnavailable, err)
	}

	return &Adapter{
		pool:     pool,
		entity:   cfg.Entity,
		idColumn: idColumn,
		fields:   cfg.Fields,
	}, nil
}

// FetchFields implements adapter.Adapter. The entity argument supplied
// by callers is ignored: a relational adapter already encodes its one
// table in configuration (spec §4.8).
func (a *Adapter) FetchFields(ctx context.Context, _ string, id string, fields []string) (adapter.EntityData, error) {
	want := fields
	if len(want) == 0 {
		want = a.fields
	}
	for _, f := range want {
		if !identifierPattern.MatchString(f) {
			return adapter.EntityData{}, fmt.Errorf("%w: field %q is not a valid identifier", adapter.ErrMalformedID, f)
		}
	}

	query := buildSelect(a.entity, a.idColumn, want)

	rows, err := a.pool.Query(ctx, query, id)
	if err != nil {
		return adapter.EntityData{}, fmt.Errorf("%w: %v", adapter.ErrBackendUnavailable, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return adapter.EntityData{}, fmt.Errorf("%w: %v", adapter.ErrBackendUnavailable, err)
		}
		return adapter.NewEntityData(), nil
	}

	values, err := rows.Values()
	if err != nil {
		return adapter.EntityData{}, fmt.Errorf("%w: %v", adapter.ErrBackendUnavailable, err)
	}

	if rows.Next() {
		log.Warn().Str("entity", a.entity).Str("id", id).Msg("relational: multiple rows matched id, using the first")
	}
	if err := rows.Err(); err != nil {
		return adapter.EntityData{}, fmt.Errorf("%w: %v", adapter.ErrBackendUnavailable, err)
	}

	out := adapter.NewEntityData()
	for i, f := range want {
		if i >= len(values) {
			break
		}
		if s, ok := adapter.StringifyValue(values[i]); ok {
			out.Set(f, s)
		}
	}
	return out, nil
}

// buildSelect renders `SELECT fields FROM entity WHERE idColumn = $1`.
// Identifiers are validated by the caller before reaching here; pgx's
// $1 placeholder carries the only untrusted value (the id).
func buildSelect(entity, idColumn string, fields []string) string {
	cols := fields[0]
	for _, f := range fields[1:] {
		cols += ", " + f
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", cols, entity, idColumn)
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}
