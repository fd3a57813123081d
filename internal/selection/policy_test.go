package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"album_poster/internal/domain"
)

type fakeLedger struct {
	published map[string]bool
	err       error
	checked   []string
}

func (f *fakeLedger) IsPublished(_ context.Context, itemID string) (bool, error) {
	f.checked = append(f.checked, itemID)
	return f.published[itemID], f.err
}

func items(ids ...string) []domain.MediaItem {
	out := make([]domain.MediaItem, len(ids))
	for i, id := range ids {
		out[i] = domain.MediaItem{ID: id}
	}
	return out
}

func noShuffle(int, func(i, j int)) {}

func reverse(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}

func TestChoose_SkipsPublished(t *testing.T) {
	ledger := &fakeLedger{published: map[string]bool{"a": true, "b": true}}
	policy := NewRandomPolicy(ledger).WithShuffle(noShuffle)

	item, err := policy.Choose(context.Background(), items("a", "b", "c", "d"))
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "c", item.ID)
	assert.Equal(t, []string{"a", "b", "c"}, ledger.checked)
}

func TestChoose_FollowsPermutation(t *testing.T) {
	ledger := &fakeLedger{published: map[string]bool{}}
	policy := NewRandomPolicy(ledger).WithShuffle(reverse)

	input := items("a", "b", "c")
	item, err := policy.Choose(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "c", item.ID)

	// caller's slice keeps source order
	assert.Equal(t, items("a", "b", "c"), input)
}

func TestChoose_NoneAvailable(t *testing.T) {
	tests := []struct {
		name       string
		candidates []domain.MediaItem
		published  map[string]bool
	}{
		{name: "empty album", candidates: nil},
		{name: "all published", candidates: items("a", "b"), published: map[string]bool{"a": true, "b": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewRandomPolicy(&fakeLedger{published: tt.published})

			item, err := policy.Choose(context.Background(), tt.candidates)
			require.NoError(t, err)
			assert.Nil(t, item)
		})
	}
}

func TestChoose_LedgerError(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("disk gone")}
	policy := NewRandomPolicy(ledger)

	item, err := policy.Choose(context.Background(), items("a"))
	require.Error(t, err)
	assert.Nil(t, item)
}

func TestChoose_EveryUnpublishedItemReachable(t *testing.T) {
	ledger := &fakeLedger{published: map[string]bool{"b": true}}
	policy := NewRandomPolicy(ledger)

	seen := map[string]bool{}
	for i := 0; i < 500 && len(seen) < 3; i++ {
		item, err := policy.Choose(context.Background(), items("a", "b", "c", "d"))
		require.NoError(t, err)
		require.NotEqual(t, "b", item.ID)
		seen[item.ID] = true
	}

	assert.Equal(t, map[string]bool{"a": true, "c": true, "d": true}, seen)
}
