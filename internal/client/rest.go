package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

// API is the REST surface the controller talks to.
type API interface {
	ListConversations(ctx context.Context, view models.View) ([]models.ConversationView, error)
	OpenThread(ctx context.Context, peerID string) (models.Thread, error)
	Send(ctx context.Context, receiverID, conversationID, body string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	UnreadCount(ctx context.Context) (int, error)
	Archive(ctx context.Context, conversationID string) error
	Restore(ctx context.Context, conversationID string) error
	DeletePermanently(ctx context.Context, conversationID string) error
}

// RESTClient calls the messaging REST routes with a bearer token.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient builds a client for the server at baseURL, e.g.
// "http://localhost:8083".
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *RESTClient) ListConversations(ctx context.Context, view models.View) ([]models.ConversationView, error) {
	var out []models.ConversationView
	err := r.do(ctx, http.MethodGet, "/api/messages/conversations?view="+url.QueryEscape(string(view)), nil, &out)
	return out, err
}

func (r *RESTClient) OpenThread(ctx context.Context, peerID string) (models.Thread, error) {
	var out models.Thread
	err := r.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &out)
	return out, err
}

func (r *RESTClient) Send(ctx context.Context, receiverID, conversationID, body string) (models.Message, error) {
	var out models.Message
	err := r.do(ctx, http.MethodPost, "/api/messages", map[string]string{
		"receiverId":     receiverID,
		"conversationId": conversationID,
		"message":        body,
	}, &out)
	return out, err
}

func (r *RESTClient) MarkRead(ctx context.Context, conversationID string) error {
	return r.do(ctx, http.MethodPatch, "/api/messages/read/"+url.PathEscape(conversationID), nil, nil)
}

func (r *RESTClient) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		UnreadCount int `json:"unreadCount"`
	}
	err := r.do(ctx, http.MethodGet, "/api/messages/unread-count", nil, &out)
	return out.UnreadCount, err
}

func (r *RESTClient) Archive(ctx context.Context, conversationID string) error {
	return r.do(ctx, http.MethodPatch, "/api/messages/conversation/"+url.PathEscape(conversationID)+"/archive", nil, nil)
}

func (r *RESTClient) Restore(ctx context.Context, conversationID string) error {
	return r.do(ctx, http.MethodPatch, "/api/messages/conversation/"+url.PathEscape(conversationID)+"/restore", nil, nil)
}

func (r *RESTClient) DeletePermanently(ctx context.Context, conversationID string) error {
	return r.do(ctx, http.MethodDelete, "/api/messages/conversation/"+url.PathEscape(conversationID)+"/permanent", nil, nil)
}

// do performs one request. Server errors come back as *errs.Error; network
// failures as unavailable.
func (r *RESTClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return errs.Unavailable("messaging server unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error *errs.Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == nil {
			return errs.Unavailable(fmt.Sprintf("unexpected status %d", resp.StatusCode), err)
		}
		return payload.Error
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Unavailable("malformed response", err)
	}
	return nil
}
