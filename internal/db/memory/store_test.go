package memory

import (
	"context"
	"testing"

	"github.com/imagespace/iqrproxy/internal/db"
)

func TestHSetMerges(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.HSet(ctx, "k", map[string]string{"a": "1"}); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := s.HSet(ctx, "k", map[string]string{"b": "2"}); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	out, err := s.HGetAllMulti(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("HGetAllMulti: %v", err)
	}
	if out[0]["a"] != "1" || out[0]["b"] != "2" {
		t.Errorf("hash = %v", out[0])
	}

	out[0]["a"] = "mutated"
	again, _ := s.HGetAllMulti(ctx, []string{"k"})
	if again[0]["a"] != "1" {
		t.Error("HGetAllMulti must return copies")
	}
}

func TestHGetAllMulti(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.HSet(ctx, "k1", map[string]string{"f": "a"})

	out, err := s.HGetAllMulti(ctx, []string{"k1", "gone"})
	if err != nil {
		t.Fatalf("HGetAllMulti: %v", err)
	}
	if len(out) != 2 || out[0]["f"] != "a" || len(out[1]) != 0 {
		t.Errorf("out = %v", out)
	}
}

func TestScan(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, k := range []string{
		"iqr:folder:alice:sessions:item:2",
		"iqr:folder:alice:sessions:item:1",
		"iqr:folder:bob:sessions:item:3",
		"iqr:folder:a*:sessions:item:4",
	} {
		_ = s.HSet(ctx, k, map[string]string{"f": "v"})
	}

	keys, err := s.Scan(ctx, "iqr:folder:alice:sessions:item:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "iqr:folder:alice:sessions:item:1" {
		t.Errorf("keys = %v", keys)
	}

	keys, err = s.Scan(ctx, "iqr:folder:"+db.EscapePattern("a*")+":sessions:item:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 1 || keys[0] != "iqr:folder:a*:sessions:item:4" {
		t.Errorf("escaped scan keys = %v", keys)
	}
}

func TestPingAndReady(t *testing.T) {
	s := NewStore()
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.WaitForReady(context.Background(), 0); err != nil {
		t.Errorf("WaitForReady: %v", err)
	}
	s.Close()
}
