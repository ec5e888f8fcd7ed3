package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Strob0t/agentrouter/internal/secrets"
)

// sequence returns a loader that yields results in order, repeating the last.
func sequence(results ...func() (map[string]string, error)) secrets.Loader {
	var mu sync.Mutex
	i := 0
	return func() (map[string]string, error) {
		mu.Lock()
		defer mu.Unlock()
		r := results[min(i, len(results)-1)]
		i++
		return r()
	}
}

func vals(m map[string]string) func() (map[string]string, error) {
	return func() (map[string]string, error) { return m, nil }
}

func fail(msg string) func() (map[string]string, error) {
	return func() (map[string]string, error) { return nil, errors.New(msg) }
}

func TestNewVault(t *testing.T) {
	v, err := secrets.NewVault(secrets.Static(map[string]string{"a": "1"}))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if v.Get("a") != "1" || v.Get("missing") != "" {
		t.Fatalf("unexpected values: a=%q missing=%q", v.Get("a"), v.Get("missing"))
	}
	if v.Generation() != 1 {
		t.Errorf("generation = %d, want 1", v.Generation())
	}

	if _, err := secrets.NewVault(sequence(fail("unreachable"))); err == nil {
		t.Fatal("expected initial load error")
	}

	empty, err := secrets.NewVault(sequence(vals(nil)))
	if err != nil {
		t.Fatalf("NewVault(nil map): %v", err)
	}
	if empty.Get("x") != "" {
		t.Error("nil secret set should read as empty")
	}
}

func TestVault_Reload(t *testing.T) {
	tests := []struct {
		name    string
		second  func() (map[string]string, error)
		wantErr bool
		want    string
		wantGen uint64
	}{
		{"rotates", vals(map[string]string{"token": "new"}), false, "new", 2},
		{"keeps previous on error", fail("backend down"), true, "old", 1},
		{"drops removed keys", vals(map[string]string{}), false, "", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := secrets.NewVault(sequence(vals(map[string]string{"token": "old"}), tt.second))
			if err != nil {
				t.Fatal(err)
			}
			get := v.Getter("token")

			err = v.Reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reload err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := get(); got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
			if v.Generation() != tt.wantGen {
				t.Errorf("generation = %d, want %d", v.Generation(), tt.wantGen)
			}
		})
	}
}

func TestVault_ReadsDuringReload(t *testing.T) {
	v, _ := secrets.NewVault(secrets.Static(map[string]string{"k": "v"}))

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			if v.Get("k") != "v" {
				t.Error("read observed a partial secret set")
			}
		})
		wg.Go(func() { _ = v.Reload() })
	}
	wg.Wait()
	if v.Generation() != 51 {
		t.Errorf("generation = %d, want 51", v.Generation())
	}
}

func TestVault_Redacted(t *testing.T) {
	v, _ := secrets.NewVault(secrets.Static(map[string]string{
		"long":  "sk-abcdef123456",
		"four":  "abcd",
		"short": "ab",
	}))

	for key, want := range map[string]string{"long": "sk****", "four": "****", "short": "****", "unset": ""} {
		if got := v.Redacted(key); got != want {
			t.Errorf("Redacted(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestFileLoader_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_key")
	if err := os.WriteFile(path, []byte("  first\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	v, err := secrets.NewVault(secrets.Chain(
		secrets.Static(map[string]string{"mcp_api_key": "from-config", "other": "kept"}),
		secrets.FileLoader(map[string]string{"mcp_api_key": path, "unset": ""}),
	))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	if got := v.Get("mcp_api_key"); got != "first" {
		t.Fatalf("file should override config, got %q", got)
	}
	if got := v.Get("other"); got != "kept" {
		t.Errorf("static value lost, got %q", got)
	}

	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := v.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := v.Get("mcp_api_key"); got != "second" {
		t.Fatalf("rotated key = %q, want second", got)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := v.Reload(); err == nil {
		t.Fatal("expected error for missing secret file")
	}
	if got := v.Get("mcp_api_key"); got != "second" {
		t.Errorf("failed reload replaced the key with %q", got)
	}
}
