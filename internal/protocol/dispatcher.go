// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package protocol

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmemo-dev/llmemo/internal/export"
	"github.com/llmemo-dev/llmemo/internal/session"
	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

// Dispatcher routes protocol requests to the store, resolver, and
// settings. It is the single write path for captured messages: the
// capture pipeline emits through it just like an external client would.
type Dispatcher struct {
	store    store.Store
	resolver *session.Resolver
	settings *settings.Manager
	log      *slog.Logger
	now      func() time.Time
}

func NewDispatcher(st store.Store, res *session.Resolver, mgr *settings.Manager, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    st,
		resolver: res,
		settings: mgr,
		log:      log,
		now:      time.Now,
	}
}

// Dispatch executes one request. Failures are reported in the response
// envelope; the error return is reserved for context cancellation so
// transports can tell a dead client from a rejected op.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	switch req.Op {
	case OpNewMessage:
		return d.newMessage(ctx, req.Payload)
	case OpGetSessions:
		return d.getSessions(ctx)
	case OpGetSessionMessages:
		return d.getSessionMessages(ctx, req.Payload)
	case OpSearch:
		return d.search(ctx, req.Payload)
	case OpGetStats:
		return d.getStats(ctx)
	case OpExport:
		return d.export(ctx)
	case OpGetSettings:
		v := d.settings.Current()
		return ok(Response{Settings: &v})
	case OpSetSettings:
		return d.setSettings(ctx, req.Payload)
	case OpWipe:
		return d.wipe(ctx)
	default:
		d.log.Warn("unknown protocol op", "op", req.Op)
		err := llmemoerr.New(llmemoerr.CodeProtocolUnknownOp, "unknown operation: "+req.Op,
			llmemoerr.Field("op", req.Op))
		return fail(err.Error())
	}
}

func (d *Dispatcher) newMessage(ctx context.Context, payload json.RawMessage) Response {
	var p NewMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fail("invalid NEW_MESSAGE payload: " + err.Error())
	}

	msg, sess, err := d.record(ctx, store.Provider(p.Provider), p.URL, p.ConversationID,
		store.MessageRole(p.Role), p.Content, p.Metadata)
	if err != nil {
		return fail(err.Error())
	}
	return ok(Response{Message: msg, Session: sess})
}

// record resolves the session and appends the message atomically. Both
// the NEW_MESSAGE op and the capture pipeline land here.
func (d *Dispatcher) record(ctx context.Context, provider store.Provider, url, conversationID string, role store.MessageRole, content string, metadata map[string]string) (*store.Message, *store.Session, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, llmemoerr.New(llmemoerr.CodeProtocolPayloadInvalid, "message content is empty")
	}
	if !role.Valid() {
		return nil, nil, llmemoerr.New(llmemoerr.CodeProtocolPayloadInvalid, "unknown message role",
			llmemoerr.Field("role", string(role)))
	}

	sess, err := d.resolver.Resolve(ctx, provider, url, conversationID)
	if err != nil {
		return nil, nil, err
	}

	msg := &store.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Role:      role,
		Content:   content,
		Timestamp: d.now().UTC(),
		Metadata:  metadata,
	}
	if err := d.store.AppendMessage(ctx, msg); err != nil {
		return nil, nil, err
	}

	// Re-read so the caller sees the post-append aggregates.
	sess, err = d.store.GetSession(ctx, sess.ID)
	if err != nil {
		return nil, nil, err
	}

	d.log.Debug("message recorded",
		"provider", provider,
		"session", sess.ID,
		"role", role,
		"messages", sess.MessageCount)
	return msg, sess, nil
}

// Emit implements the capture pipeline's sink.
func (d *Dispatcher) Emit(ctx context.Context, provider store.Provider, url, conversationID string, role store.MessageRole, content string, metadata map[string]string) error {
	_, _, err := d.record(ctx, provider, url, conversationID, role, content, metadata)
	return err
}

func (d *Dispatcher) getSessions(ctx context.Context) Response {
	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return fail(err.Error())
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	return ok(Response{Sessions: sessions})
}

func (d *Dispatcher) getSessionMessages(ctx context.Context, payload json.RawMessage) Response {
	var p SessionMessagesPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fail("invalid GET_SESSION_MESSAGES payload: " + err.Error())
	}
	if p.SessionID == "" {
		return fail("sessionId is required")
	}

	if _, err := d.store.GetSession(ctx, p.SessionID); err != nil {
		return fail(err.Error())
	}

	msgs, err := d.store.ListMessages(ctx, p.SessionID)
	if err != nil {
		return fail(err.Error())
	}
	sortMessages(msgs)
	return ok(Response{Messages: msgs})
}

func (d *Dispatcher) search(ctx context.Context, payload json.RawMessage) Response {
	var p SearchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fail("invalid SEARCH payload: " + err.Error())
	}
	if strings.TrimSpace(p.Query) == "" {
		return fail("query is required")
	}

	results, err := d.store.SearchMessages(ctx, p.Query)
	if err != nil {
		return fail(err.Error())
	}
	sortMessages(results)
	if results == nil {
		results = []*store.Message{}
	}
	return ok(Response{Results: results})
}

func (d *Dispatcher) getStats(ctx context.Context) Response {
	stats, err := d.store.ComputeStats(ctx)
	if err != nil {
		return fail(err.Error())
	}
	return ok(Response{Stats: stats})
}

func (d *Dispatcher) export(ctx context.Context) Response {
	snap, err := d.store.ExportAll(ctx)
	if err != nil {
		return fail(err.Error())
	}
	return ok(Response{Data: snap, Filename: export.Filename(snap.ExportedAt)})
}

func (d *Dispatcher) setSettings(ctx context.Context, payload json.RawMessage) Response {
	var p SetSettingsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fail("invalid SET_SETTINGS payload: " + err.Error())
	}
	if len(p) == 0 {
		return fail("no settings provided")
	}
	if err := d.settings.Update(ctx, p); err != nil {
		return fail(err.Error())
	}
	v := d.settings.Current()
	return ok(Response{Settings: &v})
}

func (d *Dispatcher) wipe(ctx context.Context) Response {
	if err := d.store.WipeAll(ctx); err != nil {
		return fail(llmemoerr.Wrap(err, llmemoerr.CodeStoreWipeFailure, "wiping store").Error())
	}
	// Cached identities now point at deleted rows.
	d.resolver.Forget()
	d.log.Info("store wiped")
	return ok(Response{})
}

// sortMessages orders by timestamp, oldest first, with the ID as a
// stable tie-break for messages captured in the same instant.
func sortMessages(msgs []*store.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
