package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/companion/internal/observability"
	"github.com/harun/companion/internal/tracing"
	"github.com/harun/companion/pkg/relay"
)

const tracerName = "companion.history"

// Roles written to the log
const (
	RoleStudent = "student"
	RoleGrandpa = "grandpa"
)

// maxLineSize bounds a single JSONL entry when scanning.
const maxLineSize = 1 << 20

var ErrInvalidTopic = errors.New("history: invalid topic reference")

// Entry is one line of a topic log
type Entry struct {
	TopicRef  string    `json:"topic_ref"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store implements relay.HistoryStore on the local filesystem
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore creates the history directory if needed
func NewStore(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".companion", "history")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("History store initialized")

	return &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

func validateTopic(topicRef string) error {
	switch {
	case topicRef == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case strings.Contains(topicRef, ".."):
		return fmt.Errorf("%w: contains '..'", ErrInvalidTopic)
	case strings.ContainsAny(topicRef, "/\\\x00"):
		return fmt.Errorf("%w: contains path separator", ErrInvalidTopic)
	}
	return nil
}

func (s *Store) path(topicRef string) string {
	return filepath.Join(s.dir, topicRef+".jsonl")
}

func (s *Store) writeLock(topicRef string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, ok := s.writeLocks[topicRef]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[topicRef] = lock
	return lock
}

// Append writes the student and grandpa lines of turn in one write
func (s *Store) Append(ctx context.Context, turn relay.Turn) (err error) {
	ctx = tracing.WithSessionID(ctx, turn.SessionID)
	ctx, span := tracing.StartSpan(ctx, tracerName, "history.append",
		attribute.String("topic_ref", turn.TopicRef),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.RecordHistoryOp("append", time.Since(start), err == nil)
	}()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := validateTopic(turn.TopicRef); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var buf []byte
	for _, e := range []Entry{
		{TopicRef: turn.TopicRef, SessionID: turn.SessionID, Role: RoleStudent, Content: turn.Transcript, Timestamp: ts},
		{TopicRef: turn.TopicRef, SessionID: turn.SessionID, Role: RoleGrandpa, Content: turn.Feedback, Timestamp: ts},
	} {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}

	lock := s.writeLock(turn.TopicRef)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.path(turn.TopicRef), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(buf); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history: %w", err)
	}

	logger.Debug().Str("topic_ref", turn.TopicRef).Msg("Turn appended")
	return nil
}

// Load returns the turns recorded for topicRef, oldest first. A missing file is an empty history.
func (s *Store) Load(ctx context.Context, topicRef string) (turns []relay.Turn, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "history.load",
		attribute.String("topic_ref", topicRef),
	)
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.RecordHistoryOp("load", time.Since(start), err == nil)
	}()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("topic_ref", topicRef).Logger()

	if err := validateTopic(topicRef); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path(topicRef))
	if os.IsNotExist(err) {
		return []relay.Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse history line, skipping")
			continue
		}
		if e.Role != RoleStudent && e.Role != RoleGrandpa {
			logger.Warn().Int("line", lineNum).Str("role", e.Role).Msg("Unknown history role, skipping")
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	turns = pair(topicRef, entries)
	logger.Debug().Int("turns", len(turns)).Msg("History loaded")
	return turns, nil
}

// pair folds entries into turns. A grandpa line closes the open student line of
// the same session; an unmatched line still yields a turn with the other side empty.
func pair(topicRef string, entries []Entry) []relay.Turn {
	turns := make([]relay.Turn, 0, len(entries)/2)
	var open *relay.Turn

	flush := func() {
		if open != nil {
			turns = append(turns, *open)
			open = nil
		}
	}

	for _, e := range entries {
		switch e.Role {
		case RoleStudent:
			flush()
			open = &relay.Turn{TopicRef: topicRef, SessionID: e.SessionID, Transcript: e.Content, Timestamp: e.Timestamp}
		case RoleGrandpa:
			if open != nil && open.SessionID == e.SessionID {
				open.Feedback = e.Content
				flush()
				continue
			}
			flush()
			turns = append(turns, relay.Turn{TopicRef: topicRef, SessionID: e.SessionID, Feedback: e.Content, Timestamp: e.Timestamp})
		}
	}
	flush()
	return turns
}

// Topics lists the topics that have a history file
func (s *Store) Topics() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(matches))
	for _, m := range matches {
		topics = append(topics, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	return topics, nil
}

// Clear removes the history of one topic
func (s *Store) Clear(topicRef string) error {
	if err := validateTopic(topicRef); err != nil {
		return err
	}

	lock := s.writeLock(topicRef)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(topicRef)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove history: %w", err)
	}
	return nil
}

var _ relay.HistoryStore = (*Store)(nil)
