package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vendmx/vending-engine/internal/model"
)

// CachedAccountStore wraps a primary AccountStore with a Redis
// read-through cache. Reads check Redis first then fall back to the
// primary; every mutation goes to the primary and invalidates the cached
// record so the next read re-populates.
type CachedAccountStore struct {
	primary AccountStore
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedAccountStore creates a cached wrapper around a primary store.
func NewCachedAccountStore(primary AccountStore, rdb *redis.Client, ttl time.Duration) *CachedAccountStore {
	return &CachedAccountStore{primary: primary, rdb: rdb, ttl: ttl}
}

// accountEnvelope carries the password hash separately because
// model.Account excludes it from JSON.
type accountEnvelope struct {
	Account      model.Account `json:"account"`
	PasswordHash string        `json:"password_hash"`
}

func (s *CachedAccountStore) Create(ctx context.Context, a *model.Account) error {
	if err := s.primary.Create(ctx, a); err != nil {
		return err
	}
	s.cacheAccount(ctx, a)
	return nil
}

func (s *CachedAccountStore) Get(ctx context.Context, username string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(username)).Bytes()
	if err == nil {
		var env accountEnvelope
		if json.Unmarshal(data, &env) == nil {
			a := env.Account
			a.PasswordHash = env.PasswordHash
			return &a, nil
		}
	}

	a, err := s.primary.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedAccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	// Try cache via id→username mapping.
	username, err := s.rdb.Get(ctx, accountIDKey(id)).Result()
	if err == nil {
		return s.Get(ctx, username)
	}

	a, err := s.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedAccountStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	if err := s.primary.UpdatePassword(ctx, username, passwordHash); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(username))
	return nil
}

func (s *CachedAccountStore) UpdateDeposit(ctx context.Context, username string, delta int64) (*model.Account, error) {
	a, err := s.primary.UpdateDeposit(ctx, username, delta)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedAccountStore) SetDeposit(ctx context.Context, username string, value int64) (*model.Account, error) {
	a, err := s.primary.SetDeposit(ctx, username, value)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, a)
	return a, nil
}

func (s *CachedAccountStore) Delete(ctx context.Context, username string) error {
	if err := s.primary.Delete(ctx, username); err != nil {
		return err
	}
	s.rdb.Del(ctx, accountKey(username))
	return nil
}

func (s *CachedAccountStore) cacheAccount(ctx context.Context, a *model.Account) {
	env := accountEnvelope{Account: *a, PasswordHash: a.PasswordHash}
	if data, err := json.Marshal(env); err == nil {
		s.rdb.Set(ctx, accountKey(a.Username), data, s.ttl)
		s.rdb.Set(ctx, accountIDKey(a.ID), a.Username, s.ttl)
	}
}

// CachedProductStore wraps a primary ProductStore with a Redis
// read-through cache.
type CachedProductStore struct {
	primary ProductStore
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProductStore creates a cached wrapper around a primary store.
func NewCachedProductStore(primary ProductStore, rdb *redis.Client, ttl time.Duration) *CachedProductStore {
	return &CachedProductStore{primary: primary, rdb: rdb, ttl: ttl}
}

func (s *CachedProductStore) Create(ctx context.Context, p *model.Product) error {
	if err := s.primary.Create(ctx, p); err != nil {
		return err
	}
	s.cacheProduct(ctx, p)
	return nil
}

func (s *CachedProductStore) Get(ctx context.Context, id string) (*model.Product, error) {
	data, err := s.rdb.Get(ctx, productKey(id)).Bytes()
	if err == nil {
		var p model.Product
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	return p, nil
}

func (s *CachedProductStore) GetByName(ctx context.Context, name string) (*model.Product, error) {
	// Try cache via name→id mapping.
	id, err := s.rdb.Get(ctx, productNameKey(name)).Result()
	if err == nil {
		return s.Get(ctx, id)
	}

	p, err := s.primary.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	s.rdb.Set(ctx, productNameKey(name), p.ID, s.ttl)
	return p, nil
}

func (s *CachedProductStore) UpdateCost(ctx context.Context, sellerID, name string, cost int64) (*model.Product, error) {
	p, err := s.primary.UpdateCost(ctx, sellerID, name, cost)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	return p, nil
}

func (s *CachedProductStore) UpdateAmount(ctx context.Context, sellerID, name string, amount int64) (*model.Product, error) {
	p, err := s.primary.UpdateAmount(ctx, sellerID, name, amount)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	return p, nil
}

func (s *CachedProductStore) DecrementAmount(ctx context.Context, id string, qty int64) (*model.Product, error) {
	p, err := s.primary.DecrementAmount(ctx, id, qty)
	if err != nil {
		return nil, err
	}
	s.cacheProduct(ctx, p)
	return p, nil
}

func (s *CachedProductStore) Delete(ctx context.Context, sellerID, name string) (*model.Product, error) {
	p, err := s.primary.Delete(ctx, sellerID, name)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, productKey(p.ID), productNameKey(name))
	return p, nil
}

func (s *CachedProductStore) cacheProduct(ctx context.Context, p *model.Product) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, productKey(p.ID), data, s.ttl)
	}
}

func accountKey(username string) string { return fmt.Sprintf("account:%s", username) }
func accountIDKey(id string) string     { return fmt.Sprintf("account_id:%s", id) }
func productKey(id string) string       { return fmt.Sprintf("product:%s", id) }
func productNameKey(name string) string { return fmt.Sprintf("product_name:%s", name) }
