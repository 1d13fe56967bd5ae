package main

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/Zarmi/ardb/internal/ardb/hyperloglog"
)

func newTestApp() *application {
	cfg := config{
		maxConnections: 10,
		sparseMaxBytes: hyperloglog.DefaultSparseMaxBytes,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newApplication(cfg, logger)
}

// exec dispatches one command through the real router and returns the raw
// RESP reply.
func exec(t *testing.T, app *application, parts ...string) string {
	t.Helper()
	var buf bytes.Buffer
	app.router.Dispatch(app, &buf, parts)
	return buf.String()
}

func TestPFAddCommand(t *testing.T) {
	app := newTestApp()

	t.Run("create without members", func(t *testing.T) {
		if got := exec(t, app, "PFADD", "fresh"); got != ":1\r\n" {
			t.Errorf("reply = %q, want :1", got)
		}
		value, ok := app.store.Get("fresh")
		if !ok || len(value) != 18 {
			t.Errorf("stored %d bytes, want the 18-byte empty sketch", len(value))
		}
	})

	t.Run("add and re-add", func(t *testing.T) {
		if got := exec(t, app, "PFADD", "visitors", "hello"); got != ":1\r\n" {
			t.Errorf("first add = %q, want :1", got)
		}
		if got := exec(t, app, "PFADD", "visitors", "hello"); got != ":0\r\n" {
			t.Errorf("duplicate add = %q, want :0", got)
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		exec(t, app, "SET", "str", "plain")
		got := exec(t, app, "PFADD", "str", "x")
		if got != "-WRONGTYPE Operation against a key holding the wrong kind of value\r\n" {
			t.Errorf("reply = %q", got)
		}
	})

	t.Run("missing key name", func(t *testing.T) {
		if got := exec(t, app, "PFADD"); got != "-ERR wrong number of arguments for 'PFADD' command\r\n" {
			t.Errorf("reply = %q", got)
		}
	})
}

func TestPFCountCommand(t *testing.T) {
	app := newTestApp()

	if got := exec(t, app, "PFCOUNT", "nothing"); got != ":0\r\n" {
		t.Errorf("missing key = %q, want :0", got)
	}

	exec(t, app, "PFADD", "a", "x", "y")
	exec(t, app, "PFADD", "b", "y", "z")

	if got := exec(t, app, "PFCOUNT", "a"); got != ":2\r\n" {
		t.Errorf("single key = %q, want :2", got)
	}
	if got := exec(t, app, "PFCOUNT", "a", "b"); got != ":3\r\n" {
		t.Errorf("union = %q, want :3", got)
	}

	// The recomputed count is cached in the stored sketch: the dirty flag
	// is clear.
	value, _ := app.store.Get("a")
	if !hyperloglog.CacheValid(value) {
		t.Error("PFCOUNT should have settled the cache")
	}

	// Sketches survive as plain strings: GET returns the raw bytes.
	reply := exec(t, app, "GET", "a")
	if !bytes.Contains([]byte(reply), []byte("HYLL")) {
		t.Error("GET on a sketch should return the serialized HYLL value")
	}
}

func TestPFMergeCommand(t *testing.T) {
	app := newTestApp()

	exec(t, app, "PFADD", "a", "x", "y")
	exec(t, app, "PFADD", "b", "y", "z")

	if got := exec(t, app, "PFMERGE", "c", "a", "b"); got != "+OK\r\n" {
		t.Fatalf("merge reply = %q", got)
	}
	if got := exec(t, app, "PFCOUNT", "c"); got != ":3\r\n" {
		t.Errorf("count after merge = %q, want :3", got)
	}

	value, ok := app.store.Get("c")
	if !ok {
		t.Fatal("destination missing")
	}
	if value[4] != 0 {
		t.Errorf("destination encoding = %d, want dense (0)", value[4])
	}
	if len(value) != hyperloglog.DenseSize {
		t.Errorf("destination length = %d, want %d", len(value), hyperloglog.DenseSize)
	}

	// The destination shows up in the keyspace index too.
	if got := exec(t, app, "KEYS", "c"); got != "*1\r\n$1\r\nc\r\n" {
		t.Errorf("KEYS c = %q", got)
	}
}

func TestPFAddKeepsTTL(t *testing.T) {
	app := newTestApp()

	exec(t, app, "PFADD", "session", "x")
	if got := exec(t, app, "PEXPIRE", "session", "60000"); got != ":1\r\n" {
		t.Fatalf("PEXPIRE reply = %q", got)
	}

	exec(t, app, "PFADD", "session", "y")

	deadline, ok := app.store.GetExpiry("session")
	if !ok || deadline == 0 {
		t.Error("PFADD must not strip the key's TTL")
	}
}
