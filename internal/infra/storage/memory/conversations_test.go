package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainconv "helpdesk/internal/domain/conversation"
)

func TestOpenOrCreateReusesWithinWindow(t *testing.T) {
	repo := NewConversationRepository()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-1", PageID: "page-1", CustomerID: "cust-1", At: base,
	})
	require.NoError(t, err)

	second, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-2", PageID: "page-1", CustomerID: "cust-1", At: base.Add(23 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, base.Add(23*time.Hour), second.LastMessageAt)
}

func TestOpenOrCreateNewAfterWindow(t *testing.T) {
	repo := NewConversationRepository()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-1", PageID: "page-1", CustomerID: "cust-1", At: base,
	})
	require.NoError(t, err)

	second, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-2", PageID: "page-1", CustomerID: "cust-1", At: base.Add(25 * time.Hour),
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestOpenOrCreateOutOfOrderKeepsMaxActivity(t *testing.T) {
	repo := NewConversationRepository()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-1", PageID: "page-1", CustomerID: "cust-1", At: base.Add(time.Hour),
	})
	require.NoError(t, err)

	// An earlier event joins the open conversation without rewinding it.
	conv, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-2", PageID: "page-1", CustomerID: "cust-1", At: base,
	})
	require.NoError(t, err)
	require.Equal(t, domainconv.ID("conv-1"), conv.ID)
	require.Equal(t, base.Add(time.Hour), conv.LastMessageAt)
}

func TestOpenOrCreateSeparatesPairs(t *testing.T) {
	repo := NewConversationRepository()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-1", PageID: "page-1", CustomerID: "cust-1", At: at,
	})
	require.NoError(t, err)
	b, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-2", PageID: "page-1", CustomerID: "cust-2", At: at,
	})
	require.NoError(t, err)
	c, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-3", PageID: "page-2", CustomerID: "cust-1", At: at,
	})
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.ID, c.ID)
}

func TestOpenOrCreateConcurrentSinglePair(t *testing.T) {
	repo := NewConversationRepository()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	const workers = 16
	ids := make([]domainconv.ID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
				ID:         domainconv.ID(fmt.Sprintf("candidate-%d", i)),
				PageID:     "page-1",
				CustomerID: "cust-1",
				At:         at.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		require.Equal(t, ids[0], id)
	}
}

func TestAdvanceLastMessageAtNeverRewinds(t *testing.T) {
	repo := NewConversationRepository()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	conv, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-1", PageID: "page-1", CustomerID: "cust-1", At: base,
	})
	require.NoError(t, err)

	require.NoError(t, repo.AdvanceLastMessageAt(context.Background(), conv.ID, base.Add(-time.Hour)))
	got, err := repo.ByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, base, got.LastMessageAt)

	require.NoError(t, repo.AdvanceLastMessageAt(context.Background(), conv.ID, base.Add(time.Hour)))
	got, err = repo.ByID(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Hour), got.LastMessageAt)
}

func TestListByPagesSortsByActivity(t *testing.T) {
	repo := NewConversationRepository()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-old", PageID: "page-1", CustomerID: "cust-1", At: base,
	})
	require.NoError(t, err)
	_, err = repo.OpenOrCreate(context.Background(), domainconv.OpenOrCreateParams{
		ID: "conv-new", PageID: "page-1", CustomerID: "cust-2", At: base.Add(time.Hour),
	})
	require.NoError(t, err)

	convs, err := repo.ListByPages(context.Background(), []string{"page-1"})
	require.NoError(t, err)
	require.Len(t, convs, 2)
	require.Equal(t, domainconv.ID("conv-new"), convs[0].ID)
	require.Equal(t, domainconv.ID("conv-old"), convs[1].ID)
}
