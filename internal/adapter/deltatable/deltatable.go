// Package deltatable implements the "AzDelta" DatabaseAdapter kind
// (spec §4.6): point lookups against a columnar table file, addressed
// by a query template with a single `{}` id placeholder. There is no
// real Delta Lake client in the dependency corpus this module draws
// from, so the table handle is a parquet-go reader over a local file
// path, and `delta_record_query` is restricted to the one predicate
// shape every worked example in the spec actually uses — a single
// column equality test, e.g. `id = '{}'` — substituted and evaluated
// against each row, rather than a full query language.
package deltatable

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/prismcache/prismcache/internal/adapter"
)

// idPattern bounds what may be substituted into a query template's `{}`
// placeholder, defending against template injection (spec §4.6 step 1).
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)

// predicatePattern extracts the column name out of a delta_record_query
// of the form `<column> = '{}'`. This is the one predicate shape this
// adapter can execute; see the package doc.
var predicatePattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*'\{\}'\s*$`)

// Config holds one AzDelta provider's parameters, per spec §6's
// `{delta_table_name, delta_table_path, delta_record_query}` settings.
type Config struct {
	TableName     string
	TablePath     string
	QueryTemplate string // delta_record_query: exactly one "<column> = '{}'" predicate
}

// Adapter looks up rows in a lazily-opened, backoff-protected table
// handle by evaluating the configured predicate. The handle is opened
// on first use and cached; if the backing file is unavailable, opens
// are retried with exponential backoff (1s initial, 30s cap) instead of
// failing every request identically.
type Adapter struct {
	cfg             Config
	predicateColumn string

	mu          sync.Mutex
	file        *parquet.File
	nextAttempt time.Time
	backoff     time.Duration
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// New validates cfg, extracts the predicate column from its query
// template, and returns an Adapter. It does not open the table file;
// that happens lazily on first FetchFields, per spec §4.6.
func New(cfg Config) (*Adapter, error) {
	if strings.Count(cfg.QueryTemplate, "{}") != 1 {
		return nil, fmt.Errorf("%w: delta_record_query %q must contain exactly one \"{}\" placeholder", adapter.ErrConfiguration, cfg.QueryTemplate)
	}
	m := predicatePattern.FindStringSubmatch(cfg.QueryTemplate)
	if m == nil {
		return nil, fmt.Errorf("%w: delta_record_query %q must be a single equality predicate like \"id = '{}'\"", adapter.ErrConfiguration, cfg.QueryTemplate)
	}
	return &Adapter{cfg: cfg, predicateColumn: m[1], backoff: initialBackoff}, nil
}

// FetchFields implements adapter.Adapter. entity is ignored: an AzDelta
// adapter already encodes its one table in configuration (spec §4.8).
func (a *Adapter) FetchFields(_ context.Context, _ string, id string, fields []string) (adapter.EntityData, error) {
	if !idPattern.MatchString(id) {
		return adapter.EntityData{}, fmt.Errorf("%w: id %q contains disallowed characters", adapter.ErrMalformedID, id)
	}

	f, err := a.handle()
	if err != nil {
		return adapter.EntityData{}, err
	}

	// a.predicateColumn was extracted from QueryTemplate at New() time;
	// substituting id into the template and evaluating the rendered
	// predicate (predicateColumn = id) is exactly what lookup does below.
	return lookup(f, a.predicateColumn, id, fields)
}

// openTableFile opens the parquet file backing a delta-table provider
// and wraps it for random-access row-group reads.
func openTableFile(path string) (*parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return parquet.OpenFile(f, info.Size())
}

// handle returns the cached table handle, opening it if needed. Open
// failures advance an exponential backoff deadline so a caller hammering
// a down table doesn't retry the open on every single request.
func (a *Adapter) handle() (*parquet.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		return a.file, nil
	}
	if !a.nextAttempt.IsZero() && time.Now().Before(a.nextAttempt) {
		return nil, fmt.Errorf("%w: delta-table %q still in backoff until %s",
			adapter.ErrBackendUnavailable, a.cfg.TablePath, a.nextAttempt.Format(time.RFC3339))
	}

	f, err := openTableFile(a.cfg.TablePath)
	if err != nil {
		a.nextAttempt = time.Now().Add(a.backoff)
		a.backoff *= 2
		if a.backoff > maxBackoff {
			a.backoff = maxBackoff
		}
		return nil, fmt.Errorf("%w: opening %q: %v", adapter.ErrBackendUnavailable, a.cfg.TablePath, err)
	}

	a.backoff = initialBackoff
	a.nextAttempt = time.Time{}
	a.file = f
	return a.file, nil
}

// lookup scans the table's row groups for the first row whose
// predicateColumn equals id, the query this adapter executes in place
// of a real Delta/Spark query engine (spec §4.6 step 2). Row column
// order follows the table's own schema order when fields is empty,
// since AzDelta settings carry no separate projection list. Values are
// stringified per spec §4.5's rules: null is omitted, not rendered.
func lookup(f *parquet.File, predicateColumn, id string, fields []string) (adapter.EntityData, error) {
	schema := f.Schema()
	schemaFields := schema.Fields()

	predicateIndex := -1
	want := fields
	if len(want) == 0 {
		want = make([]string, len(schemaFields))
		for i, sf := range schemaFields {
			want[i] = sf.Name()
		}
	}

	fieldIndex := make(map[string]int, len(want))
	for i, sf := range schemaFields {
		if sf.Name() == predicateColumn {
			predicateIndex = i
		}
		for _, name := range want {
			if sf.Name() == name {
				fieldIndex[name] = i
			}
		}
	}
	if predicateIndex < 0 {
		return adapter.EntityData{}, fmt.Errorf("%w: predicate column %q not found in table schema", adapter.ErrConfiguration, predicateColumn)
	}

	for _, rg := range f.RowGroups() {
		rows := rg.Rows()
		defer rows.Close()

		buf := make([]parquet.Row, 64)
		for {
			n, err := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				row := buf[i]
				if predicateIndex >= len(row) || row[predicateIndex].IsNull() || row[predicateIndex].String() != id {
					continue
				}
				out := adapter.NewEntityData()
				for _, name := range want {
					col, ok := fieldIndex[name]
					if !ok || col >= len(row) || row[col].IsNull() {
						continue
					}
					out.Set(name, row[col].String())
				}
				return out, nil
			}
			if err != nil {
				break
			}
		}
	}

	return adapter.NewEntityData(), nil
}

// Close releases the cached table handle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.file = nil
	return nil
}
