package syncer

import (
	"sort"

	"github.com/heygaia/chat-sync/internal/domain"
	"github.com/heygaia/chat-sync/internal/store"
)

// mergeMessages reconciles a conversation's local messages with the set the
// backend returned. Per message ID:
//
//   - local only: kept (covers optimistic sends the backend has not seen yet)
//   - remote only: taken
//   - both, local flagged optimistic: remote wins unconditionally, since a
//     remote copy under the same ID means the backend has acknowledged the
//     send and its record is authoritative
//   - both, local still sending: local wins unconditionally, so an in-flight
//     send is never clobbered by a stale server copy
//   - both otherwise: the strictly newer side wins; on a tie the local copy
//     is kept
//
// The result is ordered by creation time ascending, ties decided by ID so the
// ordering is stable across passes.
func mergeMessages(local, remote []domain.Message) []domain.Message {
	byID := make(map[string]domain.Message, len(local))
	order := make([]string, 0, len(local)+len(remote))
	for _, m := range local {
		byID[m.ID] = m
		order = append(order, m.ID)
	}

	for _, rm := range remote {
		lm, ok := byID[rm.ID]
		if !ok {
			byID[rm.ID] = rm
			order = append(order, rm.ID)
			continue
		}
		if lm.Optimistic {
			byID[rm.ID] = rm
			continue
		}
		if lm.Status == domain.StatusSending {
			continue
		}
		if store.Millis(rm.EffectiveUpdatedAt()) > store.Millis(lm.EffectiveUpdatedAt()) {
			byID[rm.ID] = rm
		}
	}

	out := make([]domain.Message, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := store.Millis(out[i].CreatedAt), store.Millis(out[j].CreatedAt)
		if ci != cj {
			return ci < cj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
