// ABOUTME: REST snapshot API client for profiles, conversations, history and uploads
// ABOUTME: Maps HTTP failures onto the sync engine's error taxonomy

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/chat-sync/internal/model"
)

const defaultTimeout = 30 * time.Second

// Error is a non-2xx response. It wraps the taxonomy sentinel matching the
// status code.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api returned status %d", e.Status)
}

func (e *Error) Unwrap() error { return e.kind }

// kindForStatus maps an HTTP status onto the taxonomy.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.ErrAuthExpired
	case status == http.StatusNotFound, status == http.StatusConflict, status == http.StatusGone:
		return model.ErrConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity,
		status == http.StatusRequestEntityTooLarge:
		return model.ErrValidation
	default:
		return model.ErrTransient
	}
}

// Snapshot is the session baseline returned by GET /api/profile.
type Snapshot struct {
	User          model.User           `json:"user"`
	Conversations []model.Conversation `json:"conversations"`
}

// Session is returned by the login endpoint.
type Session struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// CreateGroupRequest is the body of POST /api/conversations.
type CreateGroupRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	IsPrivate   bool     `json:"isPrivate"`
	Members     []string `json:"members"`
}

// ProfileUpdate is the body of PUT /api/profile.
type ProfileUpdate struct {
	DisplayName   string `json:"displayName,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
	AvatarColor   string `json:"avatarColor,omitempty"`
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token() string { return string(s) }

// Client talks to the chat server's REST API.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. Pass nil httpClient for a default with a
// request timeout and nil logger for default.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		client:  httpClient,
		logger:  logger.With("component", "api"),
	}
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var out Session
	body := map[string]string{"username": username, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/login", body, &out)
	return out, err
}

// Profile fetches the viewer and their conversation list.
func (c *Client) Profile(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out)
	return out, err
}

// UpdateProfile changes the viewer's profile and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPut, "/api/profile", update, &out)
	return out.User, err
}

// CreateGroup creates a group conversation.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (model.Conversation, error) {
	if req.Members == nil {
		req.Members = []string{}
	}
	return c.conversation(ctx, http.MethodPost, "/api/conversations", req)
}

// CreateDirect opens or creates a direct conversation with username.
func (c *Client) CreateDirect(ctx context.Context, username string) (model.Conversation, error) {
	return c.conversation(ctx, http.MethodPost, "/api/conversations/direct", map[string]string{"username": username})
}

// Conversation fetches one conversation including its members.
func (c *Client) Conversation(ctx context.Context, conversationID int64) (model.Conversation, error) {
	return c.conversation(ctx, http.MethodGet, "/api/conversations/"+strconv.FormatInt(conversationID, 10), nil)
}

func (c *Client) conversation(ctx context.Context, method, path string, body any) (model.Conversation, error) {
	var out struct {
		Conversation *model.Conversation `json:"conversation"`
	}
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return model.Conversation{}, err
	}
	if out.Conversation == nil || out.Conversation.ID == 0 {
		return model.Conversation{}, fmt.Errorf("%s %s: response has no conversation: %w", method, path, model.ErrTransient)
	}
	return *out.Conversation, nil
}

// AddMember adds username to a conversation.
func (c *Client) AddMember(ctx context.Context, conversationID int64, username string) error {
	path := "/api/conversations/" + strconv.FormatInt(conversationID, 10) + "/members"
	return c.do(ctx, http.MethodPost, path, map[string]string{"username": username}, nil)
}

// Messages fetches a history page in ascending order. A zero before returns
// the newest page.
func (c *Client) Messages(ctx context.Context, conversationID, before int64, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if before > 0 {
		q.Set("before", strconv.FormatInt(before, 10))
	}
	path := "/api/conversations/" + strconv.FormatInt(conversationID, 10) + "/messages?" + q.Encode()

	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(ctx context.Context, messageID int64, content string) error {
	return c.do(ctx, http.MethodPut, messagePath(messageID), map[string]string{"content": content}, nil)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.do(ctx, http.MethodDelete, messagePath(messageID), nil, nil)
}

// React adds or removes the viewer's reaction. action is "add" or "remove".
func (c *Client) React(ctx context.Context, messageID int64, emoji, action string) error {
	body := map[string]string{"emoji": emoji, "action": action}
	return c.do(ctx, http.MethodPost, messagePath(messageID)+"/reactions", body, nil)
}

func messagePath(messageID int64) string {
	return "/api/messages/" + strconv.FormatInt(messageID, 10)
}

// Upload sends one file as multipart form data and returns the stored
// attachment.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (model.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return model.Attachment{}, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return model.Attachment{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/uploads", &buf)
	if err != nil {
		return model.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Attachment model.Attachment `json:"attachment"`
	}
	if err := c.send(req, &out); err != nil {
		return model.Attachment{}, err
	}
	return out.Attachment, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		}
		return fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, model.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s response: %w: %w", req.URL.Path, model.ErrTransient, err)
	}
	return nil
}

// handleErrorResponse extracts the server's message from a failed response.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &Error{Status: resp.StatusCode, kind: kindForStatus(resp.StatusCode)}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	c.logger.Debug("api request failed",
		"method", resp.Request.Method,
		"path", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"message", apiErr.Message)
	return apiErr
}
