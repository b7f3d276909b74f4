package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/deep-saket/color-matching/internal/catalog"
)

func TestOpenFile_Missing(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if f.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", f.Len())
	}
	// Nothing changed, so nothing is written.
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, err := os.Stat(f.Path()); !os.IsNotExist(err) {
		t.Errorf("expected no file after clean flush, got %v", err)
	}
}

func TestFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.json")
	key := catalog.CacheKey{Provider: "lab-stats-224", Digest: "abc"}

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := f.Put(ctx, key, []float32{1, 2, 3}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := f.Put(ctx, catalog.CacheKey{Provider: "http:clip", Digest: "abc"}, []float32{4}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if reopened.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", reopened.Len())
	}
	got, ok, err := reopened.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("unexpected embedding %v", got)
	}

	// Provider is part of the key.
	if _, ok, _ := reopened.Get(ctx, catalog.CacheKey{Provider: "other", Digest: "abc"}); ok {
		t.Error("expected miss for another provider")
	}
}

func TestFile_CopiesValues(t *testing.T) {
	ctx := context.Background()
	f, _ := OpenFile(filepath.Join(t.TempDir(), "cache.json"))
	key := catalog.CacheKey{Provider: "p", Digest: "d"}

	in := []float32{1, 2}
	if err := f.Put(ctx, key, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	in[0] = 99

	out, _, _ := f.Get(ctx, key)
	if out[0] != 1 {
		t.Errorf("cache shares caller slice: %v", out)
	}
	out[1] = 99
	again, _, _ := f.Get(ctx, key)
	if again[1] != 2 {
		t.Errorf("Get returned internal slice: %v", again)
	}
}

func TestFile_PutEmpty(t *testing.T) {
	f, _ := OpenFile(filepath.Join(t.TempDir(), "cache.json"))
	if err := f.Put(context.Background(), catalog.CacheKey{Provider: "p", Digest: "d"}, nil); err == nil {
		t.Error("expected error for empty embedding")
	}
}

func TestOpenFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		wantLen int
	}{
		{"malformed json", "{not json", true, 0},
		{"other version", `{"version":99,"entries":[{"provider":"p","digest":"d","embedding":[1]}]}`, false, 0},
		{"empty embedding skipped", `{"version":1,"entries":[{"provider":"p","digest":"d","embedding":[]},{"provider":"p","digest":"e","embedding":[1]}]}`, false, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			f, err := OpenFile(path)
			if tc.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Len() != tc.wantLen {
				t.Errorf("expected %d entries, got %d", tc.wantLen, f.Len())
			}
		})
	}
}

func TestFile_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	f, _ := OpenFile(filepath.Join(t.TempDir(), "cache.json"))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := catalog.CacheKey{Provider: "p", Digest: string(rune('a' + i))}
			_ = f.Put(ctx, key, []float32{float32(i)})
			_, _, _ = f.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if f.Len() != 16 {
		t.Errorf("expected 16 entries, got %d", f.Len())
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}
