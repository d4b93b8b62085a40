// Package sqlite is the default storage backend: a single-file, WAL-mode
// SQLite cache living next to the daemon. One writer connection plus the
// process-wide write queue give the multi-step operations (optimistic
// replacement, bulk sync) their required atomicity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/queue"
	"github.com/heygaia/chat-sync/internal/store"
)

// Store implements domain.Store on a local SQLite file.
type Store struct {
	db  *sql.DB
	q   *queue.Queue
	bus *store.Bus
	log zerolog.Logger
}

var _ domain.Store = (*Store)(nil)

// Open opens (creating if needed) the cache file and migrates its schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing database path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", p)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the write queue already serializes mutations, and a
	// lone connection keeps SQLITE_BUSY out of the picture entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		q:   queue.New(0),
		bus: store.NewBus(),
		log: log.With().Str("component", "store").Str("driver", "sqlite").Logger(),
	}, nil
}

func (s *Store) Subscribe(fn func(domain.Event)) func() { return s.bus.Subscribe(fn) }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	s.q.Close()
	return s.db.Close()
}

// --- conversations ---

const conversationColumns = "id, title, starred, is_system_generated, system_purpose, created_at, updated_at"

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY updated_at DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

func (s *Store) PutConversation(ctx context.Context, conv *domain.Conversation) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = ?)`, conv.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if err := upsertConversation(ctx, s.db, conv); err != nil {
			return err
		}
		kind := domain.EventAdded
		if exists {
			kind = domain.EventUpdated
		}
		s.bus.Publish(domain.Event{Kind: kind, Entity: domain.EntityConversation, ConversationID: conv.ID})
		return nil
	})
}

func (s *Store) PutConversations(ctx context.Context, convs []domain.Conversation) error {
	if len(convs) == 0 {
		return nil
	}
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for i := range convs {
			if err := upsertConversation(ctx, tx, &convs[i]); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit conversations: %w", err)
		}
		// The bulk path reports every record as added, pre-existing or not.
		for i := range convs {
			s.bus.Publish(domain.Event{Kind: domain.EventAdded, Entity: domain.EntityConversation, ConversationID: convs[i].ID})
		}
		return nil
	})
}

// --- messages ---

const messageColumns = "id, conversation_id, role, content, status, optimistic, attachments, tool_data, workflow_data, calendar_event, reply_to_id, created_at, updated_at"

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

func (s *Store) PutMessage(ctx context.Context, msg *domain.Message) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		if err := upsertMessage(ctx, s.db, msg); err != nil {
			return err
		}
		s.bus.Publish(domain.Event{Kind: domain.EventAdded, Entity: domain.EntityMessage, ConversationID: msg.ConversationID, MessageID: msg.ID})
		return nil
	})
}

func (s *Store) PutMessages(ctx context.Context, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for i := range msgs {
			if err := upsertMessage(ctx, tx, &msgs[i]); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit messages: %w", err)
		}
		for i := range msgs {
			s.bus.Publish(domain.Event{Kind: domain.EventAdded, Entity: domain.EntityMessage, ConversationID: msgs[i].ConversationID, MessageID: msgs[i].ID})
		}
		return nil
	})
}

func (s *Store) ReplaceMessage(ctx context.Context, tempID string, msg *domain.Message) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, tempID); err != nil {
			return fmt.Errorf("failed to delete message %s: %w", tempID, err)
		}
		if err := upsertMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message replacement: %w", err)
		}
		s.bus.Publish(domain.Event{Kind: domain.EventUpdated, Entity: domain.EntityMessage, ConversationID: msg.ConversationID, MessageID: msg.ID})
		return nil
	})
}

func (s *Store) ReplaceOptimisticMessage(ctx context.Context, optimisticID, backendID string) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = ?`, optimisticID)
		msg, err := scanMessage(row)
		if errors.Is(err, sql.ErrNoRows) {
			// The message may already have been reconciled by a sync pass.
			s.log.Warn().Str("optimistic_id", optimisticID).Msg("optimistic message not found, skipping replacement")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load optimistic message: %w", err)
		}

		msg.ID = backendID
		msg.Optimistic = false

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, optimisticID); err != nil {
			return fmt.Errorf("failed to delete optimistic message: %w", err)
		}
		if err := upsertMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit optimistic replacement: %w", err)
		}
		s.bus.Publish(domain.Event{Kind: domain.EventUpdated, Entity: domain.EntityMessage, ConversationID: msg.ConversationID, MessageID: backendID})
		return nil
	})
}

func (s *Store) UpdateMessageContent(ctx context.Context, id, content string) error {
	return s.updateMessageField(ctx, id, "content", content)
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus) error {
	return s.updateMessageField(ctx, id, "status", string(status))
}

func (s *Store) updateMessageField(ctx context.Context, id, column, value string) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		var convID string
		err := s.db.QueryRowContext(ctx,
			`UPDATE messages SET `+column+` = ?, updated_at = ? WHERE id = ? RETURNING conversation_id`,
			value, store.Millis(nowUTC()), id).Scan(&convID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // message gone; nothing to update
		}
		if err != nil {
			return fmt.Errorf("failed to update message %s: %w", column, err)
		}
		s.bus.Publish(domain.Event{Kind: domain.EventUpdated, Entity: domain.EntityMessage, ConversationID: convID, MessageID: id})
		return nil
	})
}

func (s *Store) SyncMessages(ctx context.Context, conversationID string, msgs []domain.Message) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		for i := range msgs {
			if err := upsertMessage(ctx, tx, &msgs[i]); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit synced messages: %w", err)
		}
		s.bus.Publish(domain.Event{Kind: domain.EventSynced, Entity: domain.EntityMessage, ConversationID: conversationID, Count: len(msgs)})
		return nil
	})
}

// --- lifecycle ---

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit conversation delete: %w", err)
		}
		return nil
	})
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
			return fmt.Errorf("failed to clear messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
			return fmt.Errorf("failed to clear conversations: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit clear: %w", err)
		}
		return nil
	})
}

// --- row mapping ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertConversation(ctx context.Context, db execer, conv *domain.Conversation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, starred, is_system_generated, system_purpose, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			starred = excluded.starred,
			is_system_generated = excluded.is_system_generated,
			system_purpose = excluded.system_purpose,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Starred, conv.IsSystemGenerated, conv.SystemPurpose,
		store.Millis(conv.CreatedAt), store.Millis(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", conv.ID, err)
	}
	return nil
}

func upsertMessage(ctx context.Context, db execer, msg *domain.Message) error {
	attachments, err := marshalNullable(msg.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, status, optimistic,
			attachments, tool_data, workflow_data, calendar_event, reply_to_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			role = excluded.role,
			content = excluded.content,
			status = excluded.status,
			optimistic = excluded.optimistic,
			attachments = excluded.attachments,
			tool_data = excluded.tool_data,
			workflow_data = excluded.workflow_data,
			calendar_event = excluded.calendar_event,
			reply_to_id = excluded.reply_to_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, string(msg.Status), msg.Optimistic,
		attachments, rawNullable(msg.ToolData), rawNullable(msg.WorkflowData), rawNullable(msg.CalendarEvent),
		nullString(msg.ReplyToID), store.Millis(msg.CreatedAt), store.Millis(msg.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", msg.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Title, &c.Starred, &c.IsSystemGenerated, &c.SystemPurpose, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = store.FromMillis(created)
	c.UpdatedAt = store.FromMillis(updated)
	return &c, nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var m domain.Message
	var role, status string
	var attachments, toolData, workflowData, calendarEvent, replyTo sql.NullString
	var created, updated int64
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &status, &m.Optimistic,
		&attachments, &toolData, &workflowData, &calendarEvent, &replyTo, &created, &updated); err != nil {
		return nil, err
	}
	m.Role = domain.MessageRole(role)
	m.Status = domain.MessageStatus(status)
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	if toolData.Valid {
		m.ToolData = json.RawMessage(toolData.String)
	}
	if workflowData.Valid {
		m.WorkflowData = json.RawMessage(workflowData.String)
	}
	if calendarEvent.Valid {
		m.CalendarEvent = json.RawMessage(calendarEvent.String)
	}
	m.ReplyToID = replyTo.String
	m.CreatedAt = store.FromMillis(created)
	m.UpdatedAt = store.FromMillis(updated)
	return &m, nil
}

func marshalNullable(v []string) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func rawNullable(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nowUTC() time.Time { return time.Now().UTC() }
