package profile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lakeglass/lakeglass/pkg/logger"
	"github.com/lakeglass/lakeglass/pkg/profile"
	"github.com/lakeglass/lakeglass/pkg/store"
)

func newProvider(t *testing.T, csv map[string]string) *profile.Provider {
	t.Helper()
	s, err := store.New(context.Background(), store.Config{
		Logger:           logger.NewTest(),
		StatementTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	dir := t.TempDir()
	for name, content := range csv {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	_, err = s.LoadDir(context.Background(), dir)
	require.NoError(t, err)

	return profile.NewProvider(logger.NewTest(), s, time.Minute)
}

func TestProfile_Provider(t *testing.T) {
	t.Parallel()

	p := newProvider(t, map[string]string{
		"orders.csv": "id,customer_id,status,total,created_at\n" +
			"1,10,open,100.5,2024-01-03\n" +
			"2,11,open,88.0,2024-01-09\n" +
			"3,10,closed,42.25,2024-02-01\n",
		"customers.csv": "id,name\n10,Acme\n11,Globex\n",
	})

	t.Run("profiles_tables_with_roles", func(t *testing.T) {
		profiles, err := p.Profiles(context.Background())
		require.NoError(t, err)
		require.Len(t, profiles, 2)

		byName := map[string]profile.TableProfile{}
		for _, tp := range profiles {
			byName[tp.Name] = tp
		}
		orders := byName["orders"]
		require.EqualValues(t, 3, orders.RowCount)

		cols := map[string]profile.ColumnProfile{}
		for _, c := range orders.Columns {
			cols[c.Name] = c
		}
		require.True(t, cols["id"].IsEntityID)
		require.True(t, cols["customer_id"].IsEntityID)
		require.True(t, cols["total"].IsMetric)
		require.True(t, cols["created_at"].IsTimestamp)
		require.True(t, cols["status"].IsCategorical)
		require.EqualValues(t, 2, cols["status"].DistinctCount)
		require.Contains(t, cols["status"].Samples, "open")
		require.NotEmpty(t, cols["total"].Min)
	})

	t.Run("detects_foreign_key_relationship", func(t *testing.T) {
		profiles, err := p.Profiles(context.Background())
		require.NoError(t, err)

		rels := profile.Relationships(profiles)
		require.Len(t, rels, 1)
		require.Equal(t, "orders", rels[0].FromTable)
		require.Equal(t, "customer_id", rels[0].FromColumn)
		require.Equal(t, "customers", rels[0].ToTable)
	})

	t.Run("schema_context_renders_notation", func(t *testing.T) {
		sctx, err := p.Context(context.Background())
		require.NoError(t, err)
		require.Contains(t, sctx, "@schemas{")
		require.Contains(t, sctx, `"orders"`)
		require.Contains(t, sctx, `"customers.id"`)
		require.Contains(t, sctx, "timeColumns")
	})
}

func TestProfile_Relationships(t *testing.T) {
	t.Parallel()

	t.Run("polymorphic_reference", func(t *testing.T) {
		t.Parallel()

		profiles := []profile.TableProfile{
			{Name: "comments", Columns: []profile.ColumnProfile{
				{Name: "id"}, {Name: "entity_id"}, {Name: "entity_type"},
			}},
		}
		rels := profile.Relationships(profiles)
		require.Len(t, rels, 1)
		require.True(t, rels[0].Polymorphic)
		require.Equal(t, "*", rels[0].ToTable)
	})

	t.Run("no_edge_without_target_table", func(t *testing.T) {
		t.Parallel()

		profiles := []profile.TableProfile{
			{Name: "orders", Columns: []profile.ColumnProfile{{Name: "id"}, {Name: "warehouse_id"}}},
		}
		require.Empty(t, profile.Relationships(profiles))
	})
}
