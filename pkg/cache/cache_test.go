package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "missing"); hit {
		t.Error("hit on empty cache")
	}

	if err := c.Set(ctx, "convert:abc", []byte(`{"nodes":[]}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "convert:abc")
	if err != nil || !hit || string(data) != `{"nodes":[]}` {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "convert:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "convert:abc"); hit {
		t.Error("hit after Delete")
	}
	if err := c.Delete(ctx, "convert:abc"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("x"), time.Minute)
	_ = c.Set(ctx, "forever", []byte("y"), 0)

	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "short"); hit {
		t.Error("expired entry returned")
	}
	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entry without ttl expired")
	}
	if n, _, _ := c.Size(); n != 1 {
		t.Errorf("Size = %d entries, want 1 (expired entry removed)", n)
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	_ = c.Set(ctx, "k", []byte("v"), 0)
	if err := os.WriteFile(c.path("k"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d, want 3", n)
	}
	if entries, _, _ := c.Size(); entries != 0 {
		t.Errorf("%d entries left", entries)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash is not deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("different inputs share a hash")
	}
	if len(h1) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.RecoverKey("abc"); got != "recover:abc" {
		t.Errorf("RecoverKey = %s", got)
	}
	if got := k.RenderKey("abc", "svg"); got != "render:svg:abc" {
		t.Errorf("RenderKey = %s", got)
	}

	c1 := k.ConvertKey("abc", ConvertKeyOpts{XGap: 250})
	c2 := k.ConvertKey("abc", ConvertKeyOpts{XGap: 300})
	if c1 == c2 || !strings.HasPrefix(c1, "convert:") {
		t.Errorf("ConvertKey ignores options: %s / %s", c1, c2)
	}

	g1 := k.GenerationKey("abc", GenerationKeyOpts{Pass: "hierarchy", Model: "m"})
	g2 := k.GenerationKey("abc", GenerationKeyOpts{Pass: "relations", Model: "m"})
	if g1 == g2 {
		t.Error("GenerationKey ignores the pass")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(nil, "tenant:1:")

	if got := scoped.RecoverKey("h"); got != "tenant:1:recover:h" {
		t.Errorf("RecoverKey = %s", got)
	}
	if got := scoped.ConvertKey("h", ConvertKeyOpts{}); !strings.HasPrefix(got, "tenant:1:convert:") {
		t.Errorf("ConvertKey = %s", got)
	}
	if got := scoped.RenderKey("h", "dot"); got != "tenant:1:render:dot:h" {
		t.Errorf("RenderKey = %s", got)
	}
	if got := scoped.GenerationKey("h", GenerationKeyOpts{}); !strings.HasPrefix(got, "tenant:1:generate:") {
		t.Errorf("GenerationKey = %s", got)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("IMFGRAPH_TEST_REDIS")
	if addr == "" {
		t.Skip("IMFGRAPH_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	key := "imfgraph:test:" + Hash([]byte(t.Name()))
	if err := c.Set(ctx, key, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if data, hit, err := c.Get(ctx, key); err != nil || !hit || string(data) != "v" {
		t.Errorf("Get = %q, %v, %v", data, hit, err)
	}
	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, key); hit {
		t.Error("hit after Delete")
	}
}
