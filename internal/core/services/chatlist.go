package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"venuelive/internal/core/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var chatListTracer = otel.Tracer("chatlist-service")

const maxChatListPage = 100

// ChatListService merges the two conversation kinds into one time-ordered,
// cursor-paginated feed. Both sources are fetched in full, tagged, sorted
// descending by last-message time, then cut at the cursor and page size.
// Correct but not scalable for very large memberships; true cursor
// pagination would page each source and k-way merge.
type ChatListService struct {
	convs       domain.ConversationRepository
	groups      domain.GroupRepository
	defaultTake int
	log         *slog.Logger
}

func NewChatListService(log *slog.Logger, convs domain.ConversationRepository, groups domain.GroupRepository, defaultTake int) *ChatListService {
	if defaultTake <= 0 {
		defaultTake = 20
	}
	return &ChatListService{
		convs:       convs,
		groups:      groups,
		defaultTake: defaultTake,
		log:         log,
	}
}

// ChatList returns one page of summaries for the profile. take<=0 selects
// the default page size; cursor, when non-nil, restricts the page to
// entries strictly older than it. Ties on the timestamp (including the
// no-messages sentinel) break by entity id for deterministic paging.
func (s *ChatListService) ChatList(ctx context.Context, profileID uuid.UUID, take int, cursor *time.Time) ([]domain.ChatSummary, error) {
	ctx, span := chatListTracer.Start(ctx, "ChatListService.ChatList", trace.WithAttributes(
		attribute.String("profile_id", profileID.String()),
		attribute.Int("take", take),
	))
	defer span.End()

	if take <= 0 {
		take = s.defaultTake
	}
	if take > maxChatListPage {
		take = maxChatListPage
	}

	convs, err := s.convs.ListForProfile(ctx, profileID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "chatlist - list conversations failed", "profile_id", profileID, "err", err)
		return nil, err
	}
	groups, err := s.groups.ListForProfile(ctx, profileID)
	if err != nil {
		span.RecordError(err)
		s.log.ErrorContext(ctx, "chatlist - list groups failed", "profile_id", profileID, "err", err)
		return nil, err
	}

	merged := make([]domain.ChatSummary, 0, len(convs)+len(groups))
	merged = append(merged, convs...)
	merged = append(merged, groups...)
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].LastMessageAt.Equal(merged[j].LastMessageAt) {
			return merged[i].LastMessageAt.After(merged[j].LastMessageAt)
		}
		return merged[i].ID.String() < merged[j].ID.String()
	})

	page := make([]domain.ChatSummary, 0, take)
	for _, entry := range merged {
		if cursor != nil && !entry.LastMessageAt.Before(*cursor) {
			continue
		}
		page = append(page, entry)
		if len(page) == take {
			break
		}
	}
	span.SetAttributes(attribute.Int("page_size", len(page)))
	return page, nil
}
