package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": newSQLite(t),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var got record
			if err := s.Get(ctx, "missing", &got); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := s.Set(ctx, "a", record{Name: "first", Count: 1}); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if err := s.Set(ctx, "a", record{Name: "second", Count: 2}); err != nil {
				t.Fatalf("Set() overwrite error = %v", err)
			}
			if err := s.Get(ctx, "a", &got); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Name != "second" || got.Count != 2 {
				t.Errorf("Get() = %+v, want second/2", got)
			}

			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete() of missing key error = %v", err)
			}
			if err := s.Get(ctx, "a", &got); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	if err := s.Set(ctx, "settings", record{Name: "kept"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	s.Close()

	s, err = NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	var got record
	if err := s.Get(ctx, "settings", &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "kept" {
		t.Errorf("Get() = %+v, want kept", got)
	}
}
