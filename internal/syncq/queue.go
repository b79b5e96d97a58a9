// Package syncq persists fish writes made while the API was unreachable so
// that `hh sync` can replay them with their original idempotency keys.
package syncq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Action names the fish operation a queued command performs.
type Action string

const (
	ActionCreate    Action = "create"
	ActionFeed      Action = "feed"
	ActionHunt      Action = "hunt"
	ActionMark      Action = "marks"
	ActionExit      Action = "exit"
	ActionResurrect Action = "resurrect"
	ActionTransfer  Action = "transfer"
)

var ErrNotQueueable = errors.New("only fish writes can be queued")

type Command struct {
	Action         Action         `json:"action"`
	FishID         uint64         `json:"fish_id,omitempty"`
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// NewCommand builds a queued write for one of the fish routes: POST /v1/fish
// or POST /v1/fish/{id}/{action}. Other paths return ErrNotQueueable.
func NewCommand(path string, body map[string]any, idempotencyKey string) (Command, error) {
	if strings.TrimSpace(idempotencyKey) == "" {
		return Command{}, fmt.Errorf("%w: idempotency key is required", ErrNotQueueable)
	}
	cmd := Command{
		Method:         http.MethodPost,
		Path:           path,
		Body:           body,
		IdempotencyKey: idempotencyKey,
		QueuedAt:       time.Now().UTC(),
	}
	if path == "/v1/fish" {
		cmd.Action = ActionCreate
		return cmd, nil
	}
	rest, ok := strings.CutPrefix(path, "/v1/fish/")
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrNotQueueable, path)
	}
	rawID, action, ok := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(rawID, 10, 64)
	if !ok || err != nil || id == 0 {
		return Command{}, fmt.Errorf("%w: %s", ErrNotQueueable, path)
	}
	switch a := Action(action); a {
	case ActionFeed, ActionHunt, ActionMark, ActionExit, ActionResurrect, ActionTransfer:
		cmd.Action, cmd.FishID = a, id
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: %s", ErrNotQueueable, path)
}

// Describe is a short label such as "feed #3" for sync output.
func (c Command) Describe() string {
	if c.FishID == 0 {
		return string(c.Action) + " fish"
	}
	return fmt.Sprintf("%s #%d", c.Action, c.FishID)
}

func queuePath() (string, error) {
	dir := strings.TrimSpace(os.Getenv("HODLHUNT_HOME"))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".hodlhunt")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

// Load reads the queue. Amounts in bodies come back as json.Number so
// lamport values above 2^53 replay unchanged.
func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Command{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out []Command
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("read sync queue %s: %w", path, err)
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// Push appends cmd unless a command with the same idempotency key is already
// queued.
func Push(cmd Command) error {
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	commands = append(commands, cmd)
	return Save(commands)
}
