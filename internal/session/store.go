// Package session manages per-conversation history stored as JSONL files.
//
// File format:
//
//	Line 1:  {"_type":"metadata","id":"…","created_at":"…","updated_at":"…","metadata":{…}}
//	Line 2+: one JSON message object per line
//
// Messages are append-only; a reset rewrites the file empty.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fastgate/fastgate/internal/schema"
)

// Store loads and persists sessions as JSONL files. It is the explicit
// session registry: every live session is reachable through it, created on
// first use and destroyed on Reset or process teardown.
type Store struct {
	sessionsDir string   // workspace/sessions/
	cache       sync.Map // id → *Session
}

// NewStore creates a Store rooted at the workspace directory.
// It creates the sessions subdirectory if necessary.
func NewStore(workspace string) (*Store, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{sessionsDir: dir}, nil
}

// GetOrCreate returns the cached session for id, loading from disk if needed,
// or creating an empty new one.
func (st *Store) GetOrCreate(id string) *Session {
	if v, ok := st.cache.Load(id); ok {
		return v.(*Session)
	}

	s := st.load(id)
	if s == nil {
		s = newSession(id)
	}

	actual, _ := st.cache.LoadOrStore(id, s)
	return actual.(*Session)
}

// Save writes the session to disk and updates the cache.
func (st *Store) Save(s *Session) error {
	path := st.sessionPath(s.ID)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	s.mu.Lock()
	msgs := s.Messages.Clone()
	meta := map[string]any{
		"_type":      "metadata",
		"id":         s.ID,
		"created_at": s.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
		"metadata":   s.Metadata,
	}
	s.mu.Unlock()

	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	for _, msg := range msgs.Messages {
		if err := enc.Encode(messageToWire(msg)); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}

	st.cache.Store(s.ID, s)
	return nil
}

// Reset clears the session's history, persists the empty state, and drops it
// from the cache.
func (st *Store) Reset(id string) error {
	s := st.GetOrCreate(id)
	s.Clear()
	if err := st.Save(s); err != nil {
		return err
	}
	st.cache.Delete(id)
	return nil
}

// List returns metadata for all persisted sessions, sorted newest-first.
func (st *Store) List() []map[string]any {
	entries, _ := filepath.Glob(filepath.Join(st.sessionsDir, "*.jsonl"))
	var out []map[string]any

	for _, path := range entries {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			var data map[string]any
			if json.Unmarshal(scanner.Bytes(), &data) == nil && data["_type"] == "metadata" {
				id, _ := data["id"].(string)
				if id == "" {
					id = strings.TrimSuffix(filepath.Base(path), ".jsonl")
				}
				out = append(out, map[string]any{
					"id":         id,
					"created_at": data["created_at"],
					"updated_at": data["updated_at"],
					"path":       path,
				})
			}
		}
		f.Close()
	}

	// Newest-first by updated_at (RFC3339 sorts lexicographically).
	sort.Slice(out, func(i, j int) bool {
		ai, _ := out[i]["updated_at"].(string)
		aj, _ := out[j]["updated_at"].(string)
		return ai > aj
	})
	return out
}

// ---------------------------------------------------------------------------
// Wire format helpers

// wireMessage is the on-disk JSON representation of a message.
type wireMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
	Failed     bool             `json:"failed,omitempty"`
	Timestamp  string           `json:"timestamp"`
}

func messageToWire(msg schema.Message) wireMessage {
	w := wireMessage{
		Role:       msg.Role,
		Content:    msg.Text(),
		ToolCallID: msg.ToolCallID,
		Name:       msg.ToolName,
		Failed:     msg.Failed,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, tc := range msg.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, tc.ToWireMap())
	}
	return w
}

func wireToMessage(data map[string]any) schema.Message {
	role, _ := data["role"].(string)
	content, _ := data["content"].(string)

	msg := schema.Message{Role: role, Content: content}
	if role == "assistant" {
		c := content
		msg.Content = &c
	}

	if tcs, ok := data["tool_calls"].([]any); ok {
		for _, tc := range tcs {
			tcm, ok := tc.(map[string]any)
			if !ok {
				continue
			}
			fn, _ := tcm["function"].(map[string]any)
			id, _ := tcm["id"].(string)
			name, _ := fn["name"].(string)
			argsStr, _ := fn["arguments"].(string)
			var args map[string]any
			_ = json.Unmarshal([]byte(argsStr), &args)
			msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{ID: id, Name: name, Arguments: args})
		}
	}

	if id, ok := data["tool_call_id"].(string); ok {
		msg.ToolCallID = id
	}
	if name, ok := data["name"].(string); ok {
		msg.ToolName = name
	}
	if failed, ok := data["failed"].(bool); ok {
		msg.Failed = failed
	}
	return msg
}

// ---------------------------------------------------------------------------
// Internal helpers

// sessionPath converts a session id to its JSONL file path.
func (st *Store) sessionPath(id string) string {
	name := safeFilename(strings.ReplaceAll(id, ":", "_"))
	return filepath.Join(st.sessionsDir, name+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// load reads a session from disk, or returns nil if it does not exist.
func (st *Store) load(id string) *Session {
	path := st.sessionPath(id)

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	messages := schema.NewMessages()
	meta := map[string]any{}
	var createdAt time.Time

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20) // 1 MB per line
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			slog.Warn("skipping malformed session line", "id", id, "err", err)
			continue
		}

		if data["_type"] == "metadata" {
			if m2, ok := data["metadata"].(map[string]any); ok {
				meta = m2
			}
			if ts, ok := data["created_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					createdAt = t
				}
			}
		} else {
			messages.Add(wireToMessage(data))
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("error reading session file", "id", id, "err", err)
		return nil
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Session{
		ID:        id,
		Messages:  messages,
		CreatedAt: createdAt,
		UpdatedAt: time.Now(),
		Metadata:  meta,
	}
}
