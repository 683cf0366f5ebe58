package deltatable

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismcache/prismcache/internal/adapter"
)

func TestNew_RejectsTemplateWithoutPlaceholder(t *testing.T) {
	_, err := New(Config{
		TablePath:     "/tmp/events.parquet",
		QueryTemplate: "id = 'fixed'",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrConfiguration)
}

func TestNew_RejectsTemplateWithMultiplePlaceholders(t *testing.T) {
	_, err := New(Config{
		TablePath:     "/tmp/events.parquet",
		QueryTemplate: "id = '{}' OR alt = '{}'",
	})
	require.Error(t, err)
}

func TestNew_RejectsUnsupportedPredicateShape(t *testing.T) {
	_, err := New(Config{
		TablePath:     "/tmp/events.parquet",
		QueryTemplate: "id LIKE '%{}%'",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrConfiguration)
}

func TestNew_ExtractsPredicateColumn(t *testing.T) {
	a, err := New(Config{
		TablePath:     "/tmp/events.parquet",
		QueryTemplate: "user_id = '{}'",
	})
	require.NoError(t, err)
	assert.Equal(t, "user_id", a.predicateColumn)
}

func TestFetchFields_RejectsMalformedID(t *testing.T) {
	a, err := New(Config{
		TablePath:     "/tmp/events.parquet",
		QueryTemplate: "id = '{}'",
	})
	require.NoError(t, err)

	_, err = a.FetchFields(context.Background(), "events", "../../etc/passwd", nil)
	assert.ErrorIs(t, err, adapter.ErrMalformedID)
}

func TestFetchFields_MissingTableBacksOff(t *testing.T) {
	a, err := New(Config{
		TablePath:     "/nonexistent/path/events.parquet",
		QueryTemplate: "id = '{}'",
	})
	require.NoError(t, err)

	_, err1 := a.FetchFields(context.Background(), "events", "abc-123", nil)
	require.Error(t, err1)
	assert.ErrorIs(t, err1, adapter.ErrBackendUnavailable)

	start := time.Now()
	_, err2 := a.FetchFields(context.Background(), "events", "abc-123", nil)
	require.Error(t, err2)
	assert.Less(t, time.Since(start), time.Second, "should fail fast while backing off, not retry inline")
}

type eventRow struct {
	ID    string `parquet:"id"`
	Name  string `parquet:"name"`
	Email string `parquet:"email"`
}

// writeTestTable writes rows to a parquet file at dir/events.parquet and
// returns its path, exercising the same file shape the adapter opens.
func writeTestTable(t *testing.T, dir string, rows []eventRow) string {
	t.Helper()
	path := filepath.Join(dir, "events.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := parquet.NewGenericWriter[eventRow](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return path
}

func TestFetchFields_SubstitutesTemplateAndMatchesRow(t *testing.T) {
	path := writeTestTable(t, t.TempDir(), []eventRow{
		{ID: "01", Name: "user_01", Email: "user_01@example.com"},
		{ID: "03", Name: "user_03", Email: "user_03@example.com"},
	})

	a, err := New(Config{
		TablePath:     path,
		QueryTemplate: "id = '{}'",
	})
	require.NoError(t, err)

	got, err := a.FetchFields(context.Background(), "events", "03", nil)
	require.NoError(t, err)

	name, ok := got.Get("name")
	require.True(t, ok)
	assert.Equal(t, "user_03", name)

	email, ok := got.Get("email")
	require.True(t, ok)
	assert.Equal(t, "user_03@example.com", email)
}

func TestFetchFields_NoMatchingRowReturnsEmpty(t *testing.T) {
	path := writeTestTable(t, t.TempDir(), []eventRow{
		{ID: "01", Name: "user_01", Email: "user_01@example.com"},
	})

	a, err := New(Config{
		TablePath:     path,
		QueryTemplate: "id = '{}'",
	})
	require.NoError(t, err)

	got, err := a.FetchFields(context.Background(), "events", "99", nil)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestFetchFields_ProjectsRequestedFieldsOnly(t *testing.T) {
	path := writeTestTable(t, t.TempDir(), []eventRow{
		{ID: "01", Name: "user_01", Email: "user_01@example.com"},
	})

	a, err := New(Config{
		TablePath:     path,
		QueryTemplate: "id = '{}'",
	})
	require.NoError(t, err)

	got, err := a.FetchFields(context.Background(), "events", "01", []string{"name"})
	require.NoError(t, err)

	_, hasEmail := got.Get("email")
	assert.False(t, hasEmail)
	name, ok := got.Get("name")
	require.True(t, ok)
	assert.Equal(t, "user_01", name)
}
