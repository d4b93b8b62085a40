// Package postgres is the optional shared storage backend, used when several
// devices behind one account should see the same warmed cache. It implements
// the same contract as the sqlite backend, including write-queue serialization
// and change events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/queue"
	"github.com/heygaia/chat-sync/internal/store"
)

// Store implements domain.Store on a Postgres pool.
type Store struct {
	pool *pgxpool.Pool
	q    *queue.Queue
	bus  *store.Bus
	log  zerolog.Logger
}

var _ domain.Store = (*Store)(nil)

// Open connects to Postgres and verifies connectivity. Schema migrations are
// run separately via cmd/migrate.
func Open(ctx context.Context, dsn string, maxConns int32, log zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		q:    queue.New(0),
		bus:  store.NewBus(),
		log:  log.With().Str("component", "store").Str("driver", "postgres").Logger(),
	}, nil
}

func (s *Store) Subscribe(fn func(domain.Event)) func() { return s.bus.Subscribe(fn) }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.q.Close()
	s.pool.Close()
	return nil
}

// --- conversations ---

const conversationColumns = "id, title, starred, is_system_generated, system_purpose, created_at, updated_at"

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := s.pool.Query(ctx,
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
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conv.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if err := upsertConversation(ctx, s.pool, conv); err != nil {
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
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			for i := range convs {
				if err := upsertConversation(ctx, tx, &convs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := range convs {
			s.bus.Publish(domain.Event{Kind: domain.EventAdded, Entity: domain.EntityConversation, ConversationID: convs[i].ID})
		}
		return nil
	})
}

// --- messages ---

const messageColumns = "id, conversation_id, role, content, status, optimistic, attachments, tool_data, workflow_data, calendar_event, reply_to_id, created_at, updated_at"

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`,
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
		if err := upsertMessage(ctx, s.pool, msg); err != nil {
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
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			for i := range msgs {
				if err := upsertMessage(ctx, tx, &msgs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := range msgs {
			s.bus.Publish(domain.Event{Kind: domain.EventAdded, Entity: domain.EntityMessage, ConversationID: msgs[i].ConversationID, MessageID: msgs[i].ID})
		}
		return nil
	})
}

func (s *Store) ReplaceMessage(ctx context.Context, tempID string, msg *domain.Message) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, tempID); err != nil {
				return fmt.Errorf("failed to delete message %s: %w", tempID, err)
			}
			return upsertMessage(ctx, tx, msg)
		})
		if err != nil {
			return err
		}
		s.bus.Publish(domain.Event{Kind: domain.EventUpdated, Entity: domain.EntityMessage, ConversationID: msg.ConversationID, MessageID: msg.ID})
		return nil
	})
}

func (s *Store) ReplaceOptimisticMessage(ctx context.Context, optimisticID, backendID string) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE id = $1`, optimisticID)
		msg, err := scanMessage(row)
		if errors.Is(err, pgx.ErrNoRows) {
			s.log.Warn().Str("optimistic_id", optimisticID).Msg("optimistic message not found, skipping replacement")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load optimistic message: %w", err)
		}

		msg.ID = backendID
		msg.Optimistic = false

		err = s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, optimisticID); err != nil {
				return fmt.Errorf("failed to delete optimistic message: %w", err)
			}
			return upsertMessage(ctx, tx, msg)
		})
		if err != nil {
			return err
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
		err := s.pool.QueryRow(ctx,
			`UPDATE messages SET `+column+` = $1, updated_at = $2 WHERE id = $3 RETURNING conversation_id`,
			value, store.Millis(nowUTC()), id).Scan(&convID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
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
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			for i := range msgs {
				if err := upsertMessage(ctx, tx, &msgs[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.bus.Publish(domain.Event{Kind: domain.EventSynced, Entity: domain.EntityMessage, ConversationID: conversationID, Count: len(msgs)})
		return nil
	})
}

// --- lifecycle ---

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete messages: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete conversation: %w", err)
			}
			return nil
		})
	})
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.q.Do(ctx, func(ctx context.Context) error {
		return s.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM messages`); err != nil {
				return fmt.Errorf("failed to clear messages: %w", err)
			}
			if _, err := tx.Exec(ctx, `DELETE FROM conversations`); err != nil {
				return fmt.Errorf("failed to clear conversations: %w", err)
			}
			return nil
		})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// --- row mapping ---

type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func upsertConversation(ctx context.Context, db pgxExecer, conv *domain.Conversation) error {
	_, err := db.Exec(ctx, `
		INSERT INTO conversations (id, title, starred, is_system_generated, system_purpose, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			starred = EXCLUDED.starred,
			is_system_generated = EXCLUDED.is_system_generated,
			system_purpose = EXCLUDED.system_purpose,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		conv.ID, conv.Title, conv.Starred, conv.IsSystemGenerated, conv.SystemPurpose,
		store.Millis(conv.CreatedAt), store.Millis(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert conversation %s: %w", conv.ID, err)
	}
	return nil
}

func upsertMessage(ctx context.Context, db pgxExecer, msg *domain.Message) error {
	var attachments any
	if len(msg.Attachments) > 0 {
		data, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachments = string(data)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, status, optimistic,
			attachments, tool_data, workflow_data, calendar_event, reply_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			role = EXCLUDED.role,
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			optimistic = EXCLUDED.optimistic,
			attachments = EXCLUDED.attachments,
			tool_data = EXCLUDED.tool_data,
			workflow_data = EXCLUDED.workflow_data,
			calendar_event = EXCLUDED.calendar_event,
			reply_to_id = EXCLUDED.reply_to_id,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
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
	var attachments, toolData, workflowData, calendarEvent, replyTo *string
	var created, updated int64
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &status, &m.Optimistic,
		&attachments, &toolData, &workflowData, &calendarEvent, &replyTo, &created, &updated); err != nil {
		return nil, err
	}
	m.Role = domain.MessageRole(role)
	m.Status = domain.MessageStatus(status)
	if attachments != nil && *attachments != "" {
		if err := json.Unmarshal([]byte(*attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	if toolData != nil {
		m.ToolData = json.RawMessage(*toolData)
	}
	if workflowData != nil {
		m.WorkflowData = json.RawMessage(*workflowData)
	}
	if calendarEvent != nil {
		m.CalendarEvent = json.RawMessage(*calendarEvent)
	}
	if replyTo != nil {
		m.ReplyToID = *replyTo
	}
	m.CreatedAt = store.FromMillis(created)
	m.UpdatedAt = store.FromMillis(updated)
	return &m, nil
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
