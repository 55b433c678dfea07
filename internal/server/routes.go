// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LLMemo Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/llmemo-dev/llmemo/internal/protocol"
	"github.com/llmemo-dev/llmemo/internal/settings"
	"github.com/llmemo-dev/llmemo/internal/store"
	llmemoerr "github.com/llmemo-dev/llmemo/pkg/errors"
)

func (s *Server) registerRoutes() {
	// Session endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions",
		Summary:     "List captured sessions, newest first",
		Tags:        []string{"sessions"},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}",
		Summary:     "Get session details",
		Tags:        []string{"sessions"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-session-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/sessions/{id}/messages",
		Summary:     "List a session's messages in order",
		Tags:        []string{"messages"},
	}, s.handleListSessionMessages)

	// Search endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "search-messages",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search message contents",
		Tags:        []string{"messages"},
	}, s.handleSearch)

	// Stats endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Store statistics",
		Tags:        []string{"system"},
	}, s.handleStats)

	// Export endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "export-data",
		Method:      http.MethodGet,
		Path:        "/api/v1/export",
		Summary:     "Export all captured data",
		Tags:        []string{"system"},
	}, s.handleExport)

	// Settings endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Current capture settings",
		Tags:        []string{"settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Update capture settings",
		Tags:        []string{"settings"},
	}, s.handleUpdateSettings)

	// Wipe endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "wipe-data",
		Method:      http.MethodDelete,
		Path:        "/api/v1/data",
		Summary:     "Delete all captured data",
		Tags:        []string{"system"},
	}, s.handleWipe)

	// Raw protocol endpoint. Clients that speak the op envelope use this
	// instead of the REST routes.
	s.router.Post("/api/v1/rpc", s.handleRPC)
}

// --- Request/Response types for huma ---

type listSessionsOutput struct {
	Body struct {
		Sessions []*store.Session `json:"sessions"`
	}
}

type sessionIDInput struct {
	ID string `path:"id"`
}
type getSessionOutput struct {
	Body store.Session
}

type listMessagesOutput struct {
	Body struct {
		Messages []*store.Message `json:"messages"`
	}
}

type searchInput struct {
	Query string `query:"q" minLength:"1" doc:"Substring to match, case-insensitive"`
}
type searchOutput struct {
	Body struct {
		Results []*store.Message `json:"results"`
	}
}

type statsOutput struct {
	Body store.Stats
}

type exportOutput struct {
	Body store.Snapshot
}

type settingsOutput struct {
	Body settings.Values
}

type updateSettingsInput struct {
	Body map[string]bool
}

type wipeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// --- Handlers ---

func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*listSessionsOutput, error) {
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpGetSessions})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	out := &listSessionsOutput{}
	out.Body.Sessions = resp.Sessions
	return out, nil
}

func (s *Server) handleGetSession(ctx context.Context, input *sessionIDInput) (*getSessionOutput, error) {
	sess, err := s.store.GetSession(ctx, input.ID)
	if err != nil {
		if isStoreNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("session %q not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("loading session", err)
	}
	return &getSessionOutput{Body: *sess}, nil
}

func (s *Server) handleListSessionMessages(ctx context.Context, input *sessionIDInput) (*listMessagesOutput, error) {
	if _, err := s.store.GetSession(ctx, input.ID); err != nil {
		if isStoreNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("session %q not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("loading session", err)
	}

	raw, err := json.Marshal(protocol.SessionMessagesPayload{SessionID: input.ID})
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding request", err)
	}
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpGetSessionMessages, Payload: raw})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	out := &listMessagesOutput{}
	out.Body.Messages = resp.Messages
	if out.Body.Messages == nil {
		out.Body.Messages = []*store.Message{}
	}
	return out, nil
}

func (s *Server) handleSearch(ctx context.Context, input *searchInput) (*searchOutput, error) {
	raw, err := json.Marshal(protocol.SearchPayload{Query: input.Query})
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding request", err)
	}
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpSearch, Payload: raw})
	if !resp.Success {
		return nil, huma.Error400BadRequest(resp.Error)
	}
	out := &searchOutput{}
	out.Body.Results = resp.Results
	return out, nil
}

func (s *Server) handleStats(ctx context.Context, _ *struct{}) (*statsOutput, error) {
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpGetStats})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	return &statsOutput{Body: *resp.Stats}, nil
}

func (s *Server) handleExport(ctx context.Context, _ *struct{}) (*exportOutput, error) {
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpExport})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	return &exportOutput{Body: *resp.Data}, nil
}

func (s *Server) handleGetSettings(ctx context.Context, _ *struct{}) (*settingsOutput, error) {
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpGetSettings})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	return &settingsOutput{Body: *resp.Settings}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *updateSettingsInput) (*settingsOutput, error) {
	raw, err := json.Marshal(input.Body)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding request", err)
	}
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpSetSettings, Payload: raw})
	if !resp.Success {
		return nil, huma.Error400BadRequest(resp.Error)
	}
	return &settingsOutput{Body: *resp.Settings}, nil
}

func (s *Server) handleWipe(ctx context.Context, _ *struct{}) (*wipeOutput, error) {
	resp := s.dispatcher.Dispatch(ctx, protocol.Request{Op: protocol.OpWipe})
	if !resp.Success {
		return nil, huma.Error500InternalServerError(resp.Error)
	}
	out := &wipeOutput{}
	out.Body.Status = "wiped"
	return out, nil
}

// handleRPC decodes one protocol envelope and returns the dispatcher's
// response verbatim. Malformed envelopes still produce the envelope
// shape, so clients only ever parse one format.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(protocol.Response{
			Success: false,
			Error:   "invalid request envelope: " + err.Error(),
		})
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), req)
	_ = json.NewEncoder(w).Encode(resp)
}

func isStoreNotFound(err error) bool {
	return llmemoerr.IsNotFound(err) || errors.Is(err, store.ErrNotFound)
}
