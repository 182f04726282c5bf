package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maplebug/helpdesk/internal/domain"
	"github.com/maplebug/helpdesk/internal/geoip"
	"github.com/maplebug/helpdesk/internal/repository"
	apperrors "github.com/maplebug/helpdesk/pkg/util"
)

// fakeTicketRepo is an in-memory stand-in for the Postgres repository.
type fakeTicketRepo struct {
	tickets map[string]*domain.Ticket
	replies map[string][]domain.Reply
	fills   int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets: make(map[string]*domain.Ticket),
		replies: make(map[string][]domain.Reply),
	}
}

func (f *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	ticket.ID = uuid.NewString()
	copied := *ticket
	f.tickets[ticket.ID] = &copied
	return nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *stored
	copied.Replies = append([]domain.Reply(nil), f.replies[id]...)
	return &copied, nil
}

func (f *fakeTicketRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.tickets, id)
	delete(f.replies, id)
	return nil
}

func (f *fakeTicketRepo) IncrementViews(ctx context.Context, id string) (*domain.Ticket, error) {
	stored, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	stored.Views++
	return f.GetByID(ctx, id)
}

func (f *fakeTicketRepo) SetStatus(ctx context.Context, id string, status domain.TicketStatus) error {
	stored, ok := f.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Status = status
	return nil
}

func (f *fakeTicketRepo) FillIPLocation(ctx context.Context, id, location string) error {
	stored, ok := f.tickets[id]
	if !ok {
		return nil
	}
	if stored.IPLocation == domain.LocationUnknown {
		stored.IPLocation = location
		f.fills++
	}
	return nil
}

func (f *fakeTicketRepo) AppendReply(ctx context.Context, reply *domain.Reply) error {
	reply.ID = uuid.NewString()
	f.replies[reply.TicketID] = append(f.replies[reply.TicketID], *reply)
	return nil
}

func (f *fakeTicketRepo) DeleteReply(ctx context.Context, ticketID, replyID string) error {
	kept := f.replies[ticketID][:0]
	for _, reply := range f.replies[ticketID] {
		if reply.ID != replyID {
			kept = append(kept, reply)
		}
	}
	f.replies[ticketID] = kept
	return nil
}

func (f *fakeTicketRepo) matching(filter repository.ListFilter) []domain.Ticket {
	var result []domain.Ticket
	for _, t := range f.tickets {
		if filter.Category != nil && t.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		copied := *t
		copied.Replies = append([]domain.Reply(nil), f.replies[t.ID]...)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if filter.SortDesc {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (f *fakeTicketRepo) List(ctx context.Context, filter repository.ListFilter) ([]domain.Ticket, error) {
	result := f.matching(filter)
	offset := filter.Offset
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (f *fakeTicketRepo) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	return f.matching(repository.ListFilter{Status: &status}), nil
}

func (f *fakeTicketRepo) Count(ctx context.Context, filter repository.ListFilter) (int64, error) {
	return int64(len(f.matching(filter))), nil
}

func (f *fakeTicketRepo) countBy(filter repository.ListFilter, key func(domain.Ticket) string) []repository.KeyCount {
	counts := map[string]int64{}
	for _, t := range f.matching(filter) {
		counts[key(t)]++
	}
	var result []repository.KeyCount
	for k, v := range counts {
		result = append(result, repository.KeyCount{Key: k, Count: v})
	}
	return result
}

func (f *fakeTicketRepo) CountByCategory(ctx context.Context, filter repository.ListFilter) ([]repository.KeyCount, error) {
	return f.countBy(filter, func(t domain.Ticket) string { return t.Category }), nil
}

func (f *fakeTicketRepo) CountByStatus(ctx context.Context, filter repository.ListFilter) ([]repository.KeyCount, error) {
	return f.countBy(filter, func(t domain.Ticket) string { return string(t.Status) }), nil
}

func newTestService(repo repository.TicketRepository, resolver geoip.Resolver) *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Resolver:   resolver,
		Logger:     zap.NewNop(),
	})
}

func createInput() TicketCreateInput {
	return TicketCreateInput{
		Title:       "door is stuck",
		Description: "the east door will not open",
		Category:    "bug",
		RequestIP:   "1.2.3.4",
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	input := createInput()
	input.Title = ""
	_, err := svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestCreateRequiresDescriptionAndCategory(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})

	input := createInput()
	input.Description = ""
	_, err := svc.Create(context.Background(), input)
	assert.Error(t, err)

	input = createInput()
	input.Category = ""
	_, err = svc.Create(context.Background(), input)
	assert.Error(t, err)
}

func TestCreateDefaults(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{Location: "zh-hz-xh-telecom"})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusCreated, ticket.Status)
	assert.EqualValues(t, 0, ticket.Views)
	assert.Equal(t, "zh-hz-xh-telecom", ticket.IPLocation)
	assert.Equal(t, "1.2.3.4", ticket.UserIP)
	assert.NotEmpty(t, ticket.ID)
}

func TestCreateSubCategoryFallback(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})

	input := createInput()
	input.Category = domain.CategorySuggestion
	ticket, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.SubCategoryFallback, ticket.SubCategory)

	// other categories keep an empty sub-category
	ticket, err = svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	assert.Empty(t, ticket.SubCategory)
}

func TestCreateHonorsSuppliedCreatedAt(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	supplied := time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC)
	input := createInput()
	input.CreatedAt = &supplied
	ticket, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, ticket.CreatedAt.Equal(supplied))
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	_, err := svc.Get(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
}

func TestIncrementViewsAccumulates(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.IncrementViews(context.Background(), ticket.ID)
		require.NoError(t, err)
	}

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.Views)
}

func TestIncrementViewsNotFound(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	_, err := svc.IncrementViews(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
}

func TestAppendReplySanitizes(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{Location: "somewhere"})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	updated, err := svc.AppendReply(context.Background(), ticket.ID, `<script>alert(1)</script>hello`, "alice", "5.6.7.8")
	require.NoError(t, err)
	require.Len(t, updated.Replies, 1)

	reply := updated.Replies[0]
	assert.NotContains(t, reply.Message, "<script>")
	assert.NotContains(t, reply.Message, "alert(1)")
	assert.Contains(t, reply.Message, "hello")
	assert.Equal(t, "alice", reply.User)
	assert.Equal(t, "somewhere", reply.IPLocation)
	assert.Equal(t, "5.6.7.8", reply.IP)
}

func TestAppendReplyValidation(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	_, err = svc.AppendReply(context.Background(), ticket.ID, "", "alice", "")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)

	_, err = svc.AppendReply(context.Background(), ticket.ID, "hi", "", "")
	assert.Equal(t, 400, apperrors.ToDomainError(err).HTTPStatus)
}

func TestAppendReplyTicketMissing(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	_, err := svc.AppendReply(context.Background(), uuid.NewString(), "hi", "alice", "")
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
}

func TestDeleteReplyUnknownIDIsNoop(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	_, err = svc.AppendReply(context.Background(), ticket.ID, "first", "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReply(context.Background(), ticket.ID, uuid.NewString()))

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, got.Replies, 1)
}

func TestDeleteReplyRemovesMatch(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	updated, err := svc.AppendReply(context.Background(), ticket.ID, "first", "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReply(context.Background(), ticket.ID, updated.Replies[0].ID))

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Replies)
}

func TestUpdateStatusNilLeavesUnchanged(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	got, err := svc.UpdateStatus(context.Background(), ticket.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCreated, got.Status)
}

func TestUpdateStatusSetsValue(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	status := domain.TicketStatusResolved
	got, err := svc.UpdateStatus(context.Background(), ticket.ID, &status)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, got.Status)

	fetched, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, fetched.Status)
}

func TestDeleteRemovesTicketAndReplies(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	_, err = svc.AppendReply(context.Background(), ticket.ID, "first", "alice", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), ticket.ID))

	_, err = svc.Get(context.Background(), ticket.ID)
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
	assert.Empty(t, repo.replies[ticket.ID])
}

func TestDeleteNotFound(t *testing.T) {
	svc := newTestService(newFakeTicketRepo(), geoip.Static{})
	err := svc.Delete(context.Background(), uuid.NewString())
	assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
}

// lazyResolver fails a fixed number of times before answering.
type lazyResolver struct {
	failures int
	calls    int
	location string
}

func (r *lazyResolver) Resolve(ctx context.Context, ip string) string {
	r.calls++
	if r.calls <= r.failures {
		return domain.LocationUnknown
	}
	return r.location
}

func TestLazyLocationFill(t *testing.T) {
	repo := newFakeTicketRepo()
	// fail during create so the ticket is stored with the sentinel
	resolver := &lazyResolver{failures: 1, location: "zh-hz-xh-telecom"}
	svc := newTestService(repo, resolver)

	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	assert.Equal(t, domain.LocationUnknown, ticket.IPLocation)

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "zh-hz-xh-telecom", got.IPLocation)
	assert.Equal(t, 1, repo.fills)

	// a later read sees the stored value and does not resolve again
	got, err = svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "zh-hz-xh-telecom", got.IPLocation)
	assert.Equal(t, 2, resolver.calls)
	assert.Equal(t, 1, repo.fills)
}

func TestLazyLocationFillRetriesAfterFailure(t *testing.T) {
	repo := newFakeTicketRepo()
	resolver := &lazyResolver{failures: 2, location: "resolved-at-last"}
	svc := newTestService(repo, resolver)

	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	// lookup still failing: the sentinel stays so a later read can retry
	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LocationUnknown, got.IPLocation)
	assert.Equal(t, 0, repo.fills)

	got, err = svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "resolved-at-last", got.IPLocation)
}

func TestGetSanitizesStoredReplies(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	// simulate a record written before the gate existed
	repo.replies[ticket.ID] = append(repo.replies[ticket.ID], domain.Reply{
		ID:       uuid.NewString(),
		TicketID: ticket.ID,
		Message:  `<script>alert(1)</script>legacy`,
		User:     "bob",
	})

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, got.Replies, 1)
	assert.NotContains(t, got.Replies[0].Message, "<script>")
	assert.Contains(t, got.Replies[0].Message, "legacy")
}

func TestGetBackfillsSubCategory(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)

	// older suggestion tickets predate the sub-category field
	repo.tickets[ticket.ID].Category = domain.CategorySuggestion
	repo.tickets[ticket.ID].SubCategory = ""

	got, err := svc.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubCategoryFallback, got.SubCategory)
}

func seedTickets(t *testing.T, svc *TicketService, category string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		_, err := svc.Create(context.Background(), TicketCreateInput{
			Title:       fmt.Sprintf("%s %d", category, i),
			Description: "d",
			Category:    category,
			CreatedAt:   &created,
		})
		require.NoError(t, err)
	}
}

func TestListPagination(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	seedTickets(t, svc, "bug", 25)

	result, err := svc.List(context.Background(), ListInput{Page: 2, PageSize: 10, SortDesc: true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.TotalPages)
	assert.Len(t, result.Tickets, 10)

	// page 2 starts after the 10 newest
	first, err := svc.List(context.Background(), ListInput{Page: 1, PageSize: 10, SortDesc: true})
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, ticket := range first.Tickets {
		seen[ticket.ID] = true
	}
	for _, ticket := range result.Tickets {
		assert.False(t, seen[ticket.ID])
	}
}

func TestListZeroPageSizeGuard(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	seedTickets(t, svc, "bug", 3)

	result, err := svc.List(context.Background(), ListInput{Page: 1, PageSize: 0})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.TotalPages)
}

func TestListPinnedAlwaysIncluded(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	seedTickets(t, svc, "bug", 3)

	pinned, err := svc.Create(context.Background(), TicketCreateInput{
		Title: "announcement", Description: "d", Category: "notice",
	})
	require.NoError(t, err)
	status := domain.TicketStatusPinned
	_, err = svc.UpdateStatus(context.Background(), pinned.ID, &status)
	require.NoError(t, err)

	// filter excludes the pinned ticket's category, it still surfaces
	result, err := svc.List(context.Background(), ListInput{Category: "bug"})
	require.NoError(t, err)
	require.Len(t, result.Pinned, 1)
	assert.Equal(t, pinned.ID, result.Pinned[0].ID)
	assert.Len(t, result.Tickets, 3)
}

func TestListIncludesReplyThreads(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})

	ticket, err := svc.Create(context.Background(), createInput())
	require.NoError(t, err)
	_, err = svc.AppendReply(context.Background(), ticket.ID, "first", "alice", "")
	require.NoError(t, err)

	pinned, err := svc.Create(context.Background(), TicketCreateInput{
		Title: "announcement", Description: "d", Category: "notice",
	})
	require.NoError(t, err)
	_, err = svc.AppendReply(context.Background(), pinned.ID, "noted", "bob", "")
	require.NoError(t, err)
	status := domain.TicketStatusPinned
	_, err = svc.UpdateStatus(context.Background(), pinned.ID, &status)
	require.NoError(t, err)

	result, err := svc.List(context.Background(), ListInput{Category: "bug"})
	require.NoError(t, err)

	require.Len(t, result.Tickets, 1)
	require.Len(t, result.Tickets[0].Replies, 1)
	assert.Equal(t, "first", result.Tickets[0].Replies[0].Message)

	require.Len(t, result.Pinned, 1)
	require.Len(t, result.Pinned[0].Replies, 1)
	assert.Equal(t, "noted", result.Pinned[0].Replies[0].Message)
}

func TestStringPreviewKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("反馈意见", 50)
	got := stringPreview(long, 120)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 120, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "short", stringPreview("  short  ", 120))
	assert.Equal(t, "日本", stringPreview("日本語テキスト", 2))
}

func TestListAggregatesSumToTotal(t *testing.T) {
	repo := newFakeTicketRepo()
	svc := newTestService(repo, geoip.Static{})
	seedTickets(t, svc, "bug", 4)
	seedTickets(t, svc, domain.CategorySuggestion, 3)

	result, err := svc.List(context.Background(), ListInput{PageSize: 2})
	require.NoError(t, err)

	var categorySum, statusSum int64
	for _, kc := range result.Categories {
		categorySum += kc.Count
	}
	for _, kc := range result.Statuses {
		statusSum += kc.Count
	}
	assert.EqualValues(t, 7, categorySum)
	assert.EqualValues(t, 7, statusSum)

	// filtered listing aggregates over the filtered set only
	result, err = svc.List(context.Background(), ListInput{Category: "bug"})
	require.NoError(t, err)
	categorySum = 0
	for _, kc := range result.Categories {
		categorySum += kc.Count
	}
	assert.EqualValues(t, 4, categorySum)
}
