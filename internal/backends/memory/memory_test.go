package memory

import (
	"clientreg/internal/types"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MemoryTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestMemoryTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryTestSuite))
}

func (s *MemoryTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *MemoryTestSuite) TestTTLCache() {
	c := NewTTL[string, string]()
	c.Set("key1", "value1", 200*time.Millisecond)
	v, ok := c.Get("key1")
	s.True(ok)
	s.Equal("value1", v)

	time.Sleep(250 * time.Millisecond)
	v, ok = c.Get("key1")
	s.False(ok)
	s.Equal("", v)
}

func (s *MemoryTestSuite) TestTTLSweep() {
	now := time.Unix(1_700_000_000, 0)
	c := NewTTL[string, int]()
	c.now = func() time.Time { return now }
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Hour)

	now = now.Add(time.Minute)
	s.Equal(1, c.Sweep())
	s.Equal(1, c.Len())
	v, ok := c.Get("b")
	s.True(ok)
	s.Equal(2, v)
}

func (s *MemoryTestSuite) TestResponseCacheInvalidate() {
	c := NewResponseCache(time.Minute)
	key := types.ClientByCNPJ("1")

	_, ok, err := c.Get(s.ctx, key)
	s.NoError(err)
	s.False(ok)

	s.NoError(c.Set(s.ctx, key, []byte("v1")))
	b, ok, err := c.Get(s.ctx, key)
	s.NoError(err)
	s.True(ok)
	s.Equal([]byte("v1"), b)

	s.NoError(c.Invalidate(s.ctx, key))
	_, ok, _ = c.Get(s.ctx, key)
	s.False(ok)
	// Invalidating an absent key is fine.
	s.NoError(c.Invalidate(s.ctx, key))

	s.NoError(c.Set(s.ctx, key, []byte("v2")))
	b, ok, _ = c.Get(s.ctx, key)
	s.True(ok)
	s.Equal([]byte("v2"), b)
}

func (s *MemoryTestSuite) TestResponseCacheKeysAreIndependent() {
	c := NewResponseCache(time.Minute)
	s.NoError(c.Set(s.ctx, types.AllClients(), []byte("all")))
	s.NoError(c.Set(s.ctx, types.ClientByCNPJ("1"), []byte("one")))
	s.NoError(c.Invalidate(s.ctx, types.ClientByCNPJ("1")))
	_, ok, _ := c.Get(s.ctx, types.AllClients())
	s.True(ok)
}

func (s *MemoryTestSuite) TestJanitorStopsWithContext() {
	c := NewResponseCache(time.Millisecond)
	s.NoError(c.Set(s.ctx, types.AllClients(), []byte("x")))
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()
	s.Eventually(func() bool { return c.items.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Eventually(func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func (s *MemoryTestSuite) TestSecretIndex() {
	idx := NewSecretIndex()
	s.NoError(idx.Add(s.ctx, "enc1", "Acme"))
	s.NoError(idx.Add(s.ctx, "enc2", "Beta"))

	snap, err := idx.Snapshot(s.ctx)
	s.NoError(err)
	s.Equal(map[string]string{"enc1": "Acme", "enc2": "Beta"}, snap)

	// The snapshot is a copy.
	snap["enc3"] = "Gamma"
	s.Equal(2, idx.Len())

	s.NoError(idx.Remove(s.ctx, "enc1"))
	s.NoError(idx.Remove(s.ctx, "enc1"))
	s.Equal(1, idx.Len())
}

func (s *MemoryTestSuite) TestClientStore() {
	st := NewClientStore()
	s.NoError(st.Insert(s.ctx, types.Client{CNPJ: "2", Nome: "Beta", SecretEncrypted: "e2"}))
	s.NoError(st.Insert(s.ctx, types.Client{CNPJ: "1", Nome: "Acme", SecretEncrypted: "e1"}))
	s.ErrorIs(st.Insert(s.ctx, types.Client{CNPJ: "1", Nome: "Dup"}), types.ErrConflict)

	views, err := st.List(s.ctx)
	s.NoError(err)
	s.Equal([]types.ClientView{{CNPJ: "1", Nome: "Acme"}, {CNPJ: "2", Nome: "Beta"}}, views)

	enc, err := st.SecretFor(s.ctx, "2")
	s.NoError(err)
	s.Equal("e2", enc)

	ok, err := st.Delete(s.ctx, "2")
	s.NoError(err)
	s.True(ok)
	ok, err = st.Delete(s.ctx, "2")
	s.NoError(err)
	s.False(ok)

	_, err = st.Get(s.ctx, "2")
	s.ErrorIs(err, types.ErrNotFound)
	_, err = st.SecretFor(s.ctx, "2")
	s.ErrorIs(err, types.ErrNotFound)

	secrets, err := st.Secrets(s.ctx)
	s.NoError(err)
	s.Equal(map[string]string{"e1": "Acme"}, secrets)
}
