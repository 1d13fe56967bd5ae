package keycache

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func TestCacheBasics(t *testing.T) {
	c := New()
	now := int64(1000)

	c.Put("a")
	c.Put("b")
	c.PutWithDeadline("tmp", now+500)

	if got := c.Len(now); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	keys := c.Keys(ParsePattern("*"), now)
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"a", "b", "tmp"}) {
		t.Fatalf("Keys = %v", keys)
	}

	c.Delete("b")
	if got := c.Len(now); got != 2 {
		t.Fatalf("Len after delete = %d, want 2", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Run("lapsed keys disappear from reads", func(t *testing.T) {
		c := New()
		c.PutWithDeadline("tmp", 500)
		c.Put("keep")

		if keys := c.Keys(ParsePattern("*"), 499); len(keys) != 2 {
			t.Fatalf("before deadline: Keys = %v", keys)
		}
		if keys := c.Keys(ParsePattern("*"), 500); !reflect.DeepEqual(keys, []string{"keep"}) {
			t.Fatalf("after deadline: Keys = %v", keys)
		}
	})

	t.Run("sweep returns exactly the lapsed keys", func(t *testing.T) {
		c := New()
		c.PutWithDeadline("t1", 100)
		c.PutWithDeadline("t2", 200)
		c.PutWithDeadline("t3", 300)
		c.Put("keep")

		expired := c.Sweep(250)
		sort.Strings(expired)
		if !reflect.DeepEqual(expired, []string{"t1", "t2"}) {
			t.Fatalf("Sweep = %v, want [t1 t2]", expired)
		}
		if got := c.Len(250); got != 2 {
			t.Fatalf("Len after sweep = %d, want 2", got)
		}
		if more := c.Sweep(250); len(more) != 0 {
			t.Fatalf("second sweep returned %v", more)
		}
	})

	t.Run("stale heap entries are skipped", func(t *testing.T) {
		c := New()
		c.PutWithDeadline("k", 100)
		c.Expire("k", 900, 50) // pushes a second heap entry

		// The old entry lapses first but no longer describes the key.
		if expired := c.Sweep(100); len(expired) != 0 {
			t.Fatalf("Sweep at old deadline = %v, want none", expired)
		}
		if _, live := c.Deadline("k", 100); !live {
			t.Fatal("key should still be live under the new deadline")
		}
		if expired := c.Sweep(900); !reflect.DeepEqual(expired, []string{"k"}) {
			t.Fatalf("Sweep at new deadline = %v, want [k]", expired)
		}
	})

	t.Run("persist cancels the deadline", func(t *testing.T) {
		c := New()
		c.PutWithDeadline("k", 100)
		if !c.Persist("k", 50) {
			t.Fatal("Persist should succeed on a key with a deadline")
		}
		if expired := c.Sweep(1000); len(expired) != 0 {
			t.Fatalf("Sweep after persist = %v, want none", expired)
		}
		if c.Persist("k", 50) {
			t.Error("Persist on a permanent key should report false")
		}
	})

	t.Run("expire on a missing key fails", func(t *testing.T) {
		c := New()
		if c.Expire("ghost", 100, 50) {
			t.Error("Expire should fail for a missing key")
		}
	})
}

func TestConcurrent(t *testing.T) {
	t.Run("keys aggregate sorted across shards", func(t *testing.T) {
		cc := NewConcurrent()
		for i := 0; i < 100; i++ {
			cc.Put(fmt.Sprintf("user:%02d", i))
		}
		cc.Put("other")

		keys := cc.Keys(ParsePattern("user:*"), 0)
		if len(keys) != 100 {
			t.Fatalf("matched %d keys, want 100", len(keys))
		}
		if !sort.StringsAreSorted(keys) {
			t.Error("Keys output must be sorted")
		}
	})

	t.Run("parallel writers", func(t *testing.T) {
		cc := NewConcurrent()
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					key := fmt.Sprintf("g%d:%d", g, i)
					cc.Put(key)
					if i%3 == 0 {
						cc.Delete(key)
					}
				}
			}(g)
		}
		wg.Wait()

		want := 0
		for i := 0; i < 200; i++ {
			if i%3 != 0 {
				want++
			}
		}
		if got := cc.Len(0); got != want*8 {
			t.Fatalf("Len = %d, want %d", got, want*8)
		}
	})

	t.Run("sweep across shards", func(t *testing.T) {
		cc := NewConcurrent()
		for i := 0; i < 50; i++ {
			cc.PutWithDeadline(fmt.Sprintf("tmp:%d", i), int64(100+i))
		}
		expired := cc.Sweep(125)
		if len(expired) != 26 { // deadlines 100..125
			t.Fatalf("swept %d keys, want 26", len(expired))
		}
	})
}
