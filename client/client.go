// Package client is the Go SDK for the chat backend: plain request/response
// calls plus an SSE reader for the streaming endpoints, and a Controller
// that tracks display state across sends, forks, edits and checkpoint
// previews.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StateMessage mirrors one entry of a checkpoint's recorded conversation.
type StateMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Checkpoint is one history entry, newest first in listings.
type Checkpoint struct {
	CheckpointID       string         `json:"checkpoint_id"`
	ParentCheckpointID *string        `json:"parent_checkpoint_id"`
	Namespace          string         `json:"namespace"`
	Step               int            `json:"step"`
	MessageCount       int            `json:"message_count"`
	Messages           []StateMessage `json:"messages"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Thread is a conversation listing entry.
type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one display-table row.
type Message struct {
	ID        uint64    `json:"id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
}

func New(baseURL, userID string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		UserID:  userID,
		HTTP:    &http.Client{},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("client: %s (code=%d, http=%d)", env.Message, env.Code, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) ListThreads(ctx context.Context) ([]Thread, error) {
	var data struct {
		Threads []Thread `json:"threads"`
	}
	if err := c.getJSON(ctx, "/api/threads?user_id="+c.UserID, &data); err != nil {
		return nil, err
	}
	return data.Threads, nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var data struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/threads/"+threadID+"/messages", &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// History lists the thread's checkpoints, newest first.
func (c *Client) History(ctx context.Context, threadID string) ([]Checkpoint, error) {
	var data struct {
		Checkpoints []Checkpoint `json:"checkpoints"`
	}
	if err := c.getJSON(ctx, "/api/threads/"+threadID+"/history", &data); err != nil {
		return nil, err
	}
	return data.Checkpoints, nil
}

func (c *Client) Truncate(ctx context.Context, threadID string, keep int) (int, error) {
	var data struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := c.postJSON(ctx, "/api/threads/"+threadID+"/truncate",
		map[string]int{"keep_count": keep}, &data); err != nil {
		return 0, err
	}
	return data.DeletedCount, nil
}

func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/threads/"+threadID, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

type sendBody struct {
	ThreadID     string `json:"thread_id"`
	UserID       string `json:"user_id"`
	Message      string `json:"message"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
	Namespace    string `json:"namespace,omitempty"`
	Index        *int   `json:"index,omitempty"`
}

// Send starts a turn and returns its event stream. The channel closes after
// the terminal event; transport failures surface as a trailing StreamError.
func (c *Client) Send(ctx context.Context, threadID, message string) (<-chan Event, error) {
	return c.openStream(ctx, "/api/chat", sendBody{
		ThreadID: threadID, UserID: c.UserID, Message: message,
	})
}

// Fork starts a turn whose context is the given checkpoint's state.
func (c *Client) Fork(ctx context.Context, threadID, checkpointID, message string) (<-chan Event, error) {
	return c.openStream(ctx, "/api/chat/fork", sendBody{
		ThreadID: threadID, UserID: c.UserID, Message: message, CheckpointID: checkpointID,
	})
}

// Edit replaces the message at index and regenerates from there.
func (c *Client) Edit(ctx context.Context, threadID string, index int, message string) (<-chan Event, error) {
	return c.openStream(ctx, "/api/chat/edit", sendBody{
		ThreadID: threadID, UserID: c.UserID, Message: message, Index: &index,
	})
}

func (c *Client) openStream(ctx context.Context, path string, body sendBody) (<-chan Event, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		defer resp.Body.Close()
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Code != 0 {
			return nil, fmt.Errorf("client: %s (code=%d, http=%d)", env.Message, env.Code, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: unexpected response (http=%d)", resp.StatusCode)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := readSSE(ctx, resp.Body, out); err != nil {
			select {
			case out <- StreamError(err.Error()):
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// readSSE parses "data:" frames off the response body and forwards decoded
// events until a terminal one arrives. Comment lines (heartbeats) are
// skipped.
func readSSE(ctx context.Context, body io.Reader, out chan<- Event) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		ev, err := decodeEvent([]byte(strings.TrimSpace(data)))
		if err != nil {
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
		if Terminal(ev) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("client: stream ended without terminal event")
}
