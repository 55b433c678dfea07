// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

// Package session owns the mapping from a (provider, conversation-or-url)
// grouping key to a durable session identity.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Resolver finds or creates the session owning a grouping key.
//
// Concurrent Resolve calls for the same key are serialized through a
// per-key mutex, so two near-simultaneous first messages of one
// conversation produce exactly one session record. The cache holds only
// the immutable key-to-id mapping; aggregates are always read fresh from
// the store.
type Resolver struct {
	store store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	ids   map[string]string // session key -> session id
}

// NewResolver creates a Resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{
		store: st,
		locks: make(map[string]*sync.Mutex),
		ids:   make(map[string]string),
	}
}

// Resolve returns the session owning the (provider, conversationID-or-url)
// key, creating it on first sight.
func (r *Resolver) Resolve(ctx context.Context, provider store.Provider, url, conversationID string) (*store.Session, error) {
	if !provider.Valid() {
		return nil, llmemoerr.New(llmemoerr.CodeProtocolPayloadInvalid, "unknown provider",
			llmemoerr.FieldProvider(string(provider)))
	}

	key := store.SessionKey(provider, url, conversationID)

	// Fast path: identity already cached; fetch fresh aggregates.
	if id, ok := r.cachedID(key); ok {
		sess, err := r.store.GetSession(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, llmemoerr.Wrap(err, llmemoerr.CodeSessionResolveFailure, "fetching cached session",
				llmemoerr.FieldSessionKey(key))
		}
		// Wiped underneath us; drop the stale mapping and fall through.
		r.forget(key)
	}

	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Double-check under the key lock: another caller may have created it.
	sess, err := r.store.GetSessionByKey(ctx, key)
	if err == nil {
		r.remember(key, sess.ID)
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, llmemoerr.Wrap(err, llmemoerr.CodeSessionResolveFailure, "looking up session by key",
			llmemoerr.FieldSessionKey(key))
	}

	sess = &store.Session{
		ID:             uuid.NewString(),
		Provider:       provider,
		URL:            url,
		ConversationID: conversationID,
		Key:            key,
		StartedAt:      time.Now().UTC(),
	}

	if err := r.store.CreateSession(ctx, sess); err != nil {
		// A store-level conflict means another process won the race; the
		// key's owner is authoritative.
		if errors.Is(err, store.ErrConflict) {
			existing, getErr := r.store.GetSessionByKey(ctx, key)
			if getErr == nil {
				r.remember(key, existing.ID)
				return existing, nil
			}
		}
		return nil, llmemoerr.Wrap(err, llmemoerr.CodeSessionResolveFailure, "creating session",
			llmemoerr.FieldSessionKey(key))
	}

	r.remember(key, sess.ID)
	return sess, nil
}

// Forget drops all cached identities. Called after a full-store wipe.
func (r *Resolver) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[string]string)
}

func (r *Resolver) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

func (r *Resolver) cachedID(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.ids[key]
	return id, ok
}

func (r *Resolver) remember(key, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[key] = id
}

func (r *Resolver) forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, key)
}
