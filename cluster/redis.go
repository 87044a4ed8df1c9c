// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cluster

import (
	"time"

	"github.com/go-redis/redis"
)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to the Redis server at addr ("host:port").
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SetWithTTL(key, value string, ttl time.Duration) error {
	return s.client.Set(key, value, ttl).Err()
}

func (s *RedisStore) Get(key string) (string, bool, error) {
	v, err := s.client.Get(key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(keys...).Err()
}

func (s *RedisStore) SetAdd(key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(key, args...).Err()
}

func (s *RedisStore) SetRemove(key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(key, args...).Err()
}

func (s *RedisStore) SetMembers(key string) ([]string, error) {
	return s.client.SMembers(key).Result()
}

func (s *RedisStore) Publish(channel string, payload []byte) error {
	return s.client.Publish(channel, payload).Err()
}

func (s *RedisStore) Subscribe(channel string) (Subscription, error) {
	ps := s.client.Subscribe(channel)
	// Force the subscription onto the wire before anyone publishes.
	if _, err := ps.Receive(); err != nil {
		_ = ps.Close()
		return nil, err
	}
	sub := &redisSubscription{ps: ps, ch: make(chan []byte, 256)}
	go sub.pump()
	return sub, nil
}

func (s *RedisStore) Ping() error {
	return s.client.Ping().Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		s.ch <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.ch }

func (s *redisSubscription) Close() error { return s.ps.Close() }
