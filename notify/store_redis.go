package notify

import (
	"encoding/json"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
)

// RedisStore is a WatchStore backed by github.com/go-redis/redis/v7 (§4.7
// NEW): one string key per address, holding the JSON-encoded URL list. Fits
// a Notifier that runs as a restartable service sharing state across
// multiple instances behind a load balancer.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an already-configured *redis.Client. keyPrefix is
// prepended to every address to namespace the keyspace (e.g.
// "notify:watch:").
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(addr string) string {
	return s.prefix + addr
}

// Load scans the keyspace under prefix and decodes every entry.
func (s *RedisStore) Load() (map[string][]string, error) {
	mapping := make(map[string][]string)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scan redis watch keys")
		}
		for _, key := range keys {
			raw, err := s.client.Get(key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, errors.Wrapf(err, "get redis watch key %s", key)
			}
			var urls []string
			if err := json.Unmarshal(raw, &urls); err != nil {
				return nil, errors.Wrapf(err, "decode redis watch key %s", key)
			}
			mapping[key[len(s.prefix):]] = urls
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return mapping, nil
}

// Save appends url to addr's list if not already present.
func (s *RedisStore) Save(addr, url string) error {
	urls, err := s.readURLs(addr)
	if err != nil {
		return err
	}
	for _, u := range urls {
		if u == url {
			return nil
		}
	}
	urls = append(urls, url)
	return s.writeURLs(addr, urls)
}

// Delete removes url from addr's list, deleting the key entirely once empty.
func (s *RedisStore) Delete(addr, url string) error {
	urls, err := s.readURLs(addr)
	if err != nil {
		return err
	}
	kept := urls[:0:0]
	for _, u := range urls {
		if u != url {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		return errors.Wrap(s.client.Del(s.key(addr)).Err(), "delete redis watch key")
	}
	return s.writeURLs(addr, kept)
}

func (s *RedisStore) readURLs(addr string) ([]string, error) {
	raw, err := s.client.Get(s.key(addr)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get redis watch key")
	}
	var urls []string
	if err := json.Unmarshal(raw, &urls); err != nil {
		return nil, errors.Wrap(err, "decode redis watch key")
	}
	return urls, nil
}

func (s *RedisStore) writeURLs(addr string, urls []string) error {
	raw, err := json.Marshal(urls)
	if err != nil {
		return errors.Wrap(err, "encode redis watch key")
	}
	return errors.Wrap(s.client.Set(s.key(addr), raw, 0).Err(), "set redis watch key")
}
