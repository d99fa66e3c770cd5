package notify

import (
	"context"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chainsync "github.com/chainwallet/syncer/sync"
)

type memWatchStore struct {
	mu      gosync.Mutex
	urls    map[string][]string
	saveErr error
}

func newMemWatchStore() *memWatchStore {
	return &memWatchStore{urls: make(map[string][]string)}
}

func (s *memWatchStore) Load() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.urls))
	for addr, urls := range s.urls {
		out[addr] = append([]string{}, urls...)
	}
	return out, nil
}

func (s *memWatchStore) Save(addr, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.urls[addr] {
		if u == url {
			return nil
		}
	}
	s.urls[addr] = append(s.urls[addr], url)
	return s.saveErr
}

func (s *memWatchStore) Delete(addr, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.urls[addr][:0:0]
	for _, u := range s.urls[addr] {
		if u != url {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		delete(s.urls, addr)
	} else {
		s.urls[addr] = kept
	}
	return nil
}

type recordingPoster struct {
	mu    gosync.Mutex
	posts []string
	err   error
}

func (p *recordingPoster) Post(ctx context.Context, url, addr string, status chainsync.AddressStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, url+"|"+addr)
	return p.err
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

type noopInterface struct{}

func (noopInterface) SubscribeScripthash(ctx context.Context, sh chainsync.Scripthash) (chainsync.AddressStatus, error) {
	return nil, nil
}
func (noopInterface) GetHistoryForScripthash(ctx context.Context, sh chainsync.Scripthash) ([]chainsync.HistoryEntry, error) {
	return nil, nil
}
func (noopInterface) GetTransaction(ctx context.Context, id chainsync.TxID) ([]byte, error) {
	return nil, nil
}
func (noopInterface) Unsubscribe(ctx context.Context) error { return nil }

func scripthashOfTest(addr string) chainsync.Scripthash {
	var sh chainsync.Scripthash
	copy(sh[:], addr)
	return sh
}

func TestDispatcherStartWatchingPersistsAndSubscribes(t *testing.T) {
	store := newMemWatchStore()
	poster := &recordingPoster{}
	d := NewDispatcher(noopInterface{}, func(string) bool { return true }, scripthashOfTest, store, poster)

	require.NoError(t, d.StartWatchingAddr("addr1", "http://example.test/hook"))

	mapping, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.test/hook"}, mapping["addr1"])
	assert.Equal(t, 1, d.engine.PendingAddrs())
}

func TestDispatcherOnStatusPostsToAllSubscribers(t *testing.T) {
	store := newMemWatchStore()
	poster := &recordingPoster{}
	d := NewDispatcher(noopInterface{}, func(string) bool { return true }, scripthashOfTest, store, poster)

	require.NoError(t, d.StartWatchingAddr("addr1", "http://a.test"))
	require.NoError(t, d.StartWatchingAddr("addr1", "http://b.test"))

	require.NoError(t, d.OnStatus(context.Background(), "addr1", chainsync.HashHistory([]chainsync.HistoryEntry{{Height: 1}})))
	assert.Equal(t, 2, poster.count())
}

func TestDispatcherStopWatchingRemovesOnlyThatURL(t *testing.T) {
	store := newMemWatchStore()
	poster := &recordingPoster{}
	d := NewDispatcher(noopInterface{}, func(string) bool { return true }, scripthashOfTest, store, poster)

	require.NoError(t, d.StartWatchingAddr("addr1", "http://a.test"))
	require.NoError(t, d.StartWatchingAddr("addr1", "http://b.test"))
	require.NoError(t, d.StopWatchingAddr("addr1", "http://a.test"))

	mapping, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://b.test"}, mapping["addr1"])

	require.NoError(t, d.OnStatus(context.Background(), "addr1", nil))
	assert.Equal(t, 1, poster.count())
}
