package syncer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/heygaia/chat-sync/internal/backend"
	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/store"
	"github.com/heygaia/chat-sync/internal/stream"
)

const defaultPageLimit = 100

// Backend is the slice of the backend client the sync service needs.
type Backend interface {
	ListConversations(ctx context.Context, page, limit int) ([]backend.ConversationSummary, error)
	BatchSync(ctx context.Context, items []backend.BatchSyncItem) ([]backend.SyncedConversation, error)
}

// Service reconciles the local store with the backend. Passes are
// single-flight: a pass that starts while another is running returns
// immediately, and no pass starts while a response is streaming.
type Service struct {
	store     domain.Store
	backend   Backend
	stream    stream.State
	log       zerolog.Logger
	pageLimit int
	running   atomic.Bool
}

func NewService(st domain.Store, bk Backend, sstate stream.State, pageLimit int, log zerolog.Logger) *Service {
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	return &Service{
		store:     st,
		backend:   bk,
		stream:    sstate,
		log:       log.With().Str("component", "syncer").Logger(),
		pageLimit: pageLimit,
	}
}

// Run executes sync passes on a fixed interval until ctx is cancelled. One
// pass runs immediately on start.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.SyncOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce runs a single pass and logs any failure instead of returning it.
// Sync is opportunistic background work; a failed pass is retried on the next
// tick and must never surface to callers.
func (s *Service) SyncOnce(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.log.Warn().Err(err).Msg("sync pass failed")
	}
}

// Sync performs one full reconciliation pass: fetch the first page of
// conversations from the backend alongside the local list, work out which
// conversations are stale, batch-fetch those, and merge each one into the
// store.
func (s *Service) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("sync already in flight, skipping")
		return nil
	}
	defer s.running.Store(false)

	if s.stream.Streaming() {
		s.log.Debug().Msg("response streaming, skipping sync pass")
		return nil
	}

	var (
		remote []backend.ConversationSummary
		local  []domain.Conversation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		remote, err = s.backend.ListConversations(gctx, 1, s.pageLimit)
		return err
	})
	g.Go(func() error {
		var err error
		local, err = s.store.ListConversations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if len(remote) == 0 {
		return nil
	}

	stale := staleConversations(remote, local)
	if len(stale) == 0 {
		s.log.Debug().Msg("local cache up to date")
		return nil
	}
	s.log.Info().Int("stale", len(stale)).Msg("fetching stale conversations")

	synced, err := s.backend.BatchSync(ctx, stale)
	if err != nil {
		return err
	}

	for i := range synced {
		if err := s.applyConversation(ctx, &synced[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("conversation_id", synced[i].ConversationID).
				Msg("failed to apply synced conversation")
		}
	}
	return nil
}

// staleConversations compares the backend's conversation list against the
// local one. A conversation is stale when it is missing locally, or when the
// backend's effective timestamp is strictly newer than the local one; equal
// timestamps mean up to date. Known conversations carry the local timestamp
// as a hint so the backend can answer incrementally.
func staleConversations(remote []backend.ConversationSummary, local []domain.Conversation) []backend.BatchSyncItem {
	byID := make(map[string]domain.Conversation, len(local))
	for _, c := range local {
		byID[c.ID] = c
	}

	var stale []backend.BatchSyncItem
	for _, r := range remote {
		ru := parseServerTime(r.UpdatedAt)
		if ru.IsZero() {
			ru = parseServerTime(r.CreatedAt)
		}

		l, ok := byID[r.ConversationID]
		if !ok {
			stale = append(stale, backend.BatchSyncItem{ConversationID: r.ConversationID})
			continue
		}
		lu := l.EffectiveUpdatedAt()
		if store.Millis(ru) > store.Millis(lu) {
			item := backend.BatchSyncItem{ConversationID: r.ConversationID}
			if !lu.IsZero() {
				item.LastUpdated = lu.UTC().Format(time.RFC3339Nano)
			}
			stale = append(stale, item)
		}
	}
	return stale
}

// applyConversation merges one batch-sync result into the store. A
// conversation that started streaming after the pass began is skipped and
// picked up on a later pass. Message persistence is skipped entirely when the
// backend sent no messages, so an incremental "metadata only" answer cannot
// wipe the local history.
func (s *Service) applyConversation(ctx context.Context, sc *backend.SyncedConversation) error {
	id := sc.ConversationID
	if s.stream.StreamingConversation(id) {
		s.log.Debug().Str("conversation_id", id).Msg("conversation streaming, deferring")
		return nil
	}

	if err := s.store.PutConversation(ctx, mapConversation(sc.ConversationSummary)); err != nil {
		return err
	}
	if len(sc.Messages) == 0 {
		return nil
	}

	localMsgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	merged := mergeMessages(localMsgs, mapMessages(id, sc.Messages))
	return s.store.SyncMessages(ctx, id, merged)
}
