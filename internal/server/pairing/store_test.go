package pairing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(128, 10*time.Minute)
}

func TestCreate_IssuesUniqueLiveCodes(t *testing.T) {
	s := newTestStore()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, code, err := s.Create("dev1", 800, 600)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		require.Len(t, code, CodeLength)
		require.False(t, seen[code], "code %q issued twice while live", code)
		seen[code] = true
	}
}

func TestPollStatus_BindingMismatchReadsAsExpired(t *testing.T) {
	s := newTestStore()
	id, code, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, s.PollStatus(id, "dev1", code).State)
	assert.Equal(t, StatusExpired, s.PollStatus(id, "other", code).State)
	assert.Equal(t, StatusExpired, s.PollStatus(id, "dev1", "WRONG77").State)
	assert.Equal(t, StatusExpired, s.PollStatus("missing", "dev1", code).State)
}

func TestPollStatus_ReportsIngestProgressThenReady(t *testing.T) {
	s := newTestStore()
	id, code, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	require.NoError(t, s.RecordIngestedResource(id, "r1", "k1"))
	require.NoError(t, s.RecordIngestedResource(id, "r2", "k2"))

	st := s.PollStatus(id, "dev1", code)
	assert.Equal(t, StatusInProgress, st.State)
	assert.Equal(t, 2, st.IngestedCount)

	require.NoError(t, s.MarkReady(id))
	assert.Equal(t, StatusReady, s.PollStatus(id, "dev1", code).State)
}

func TestDeliverPackage_SecondDeliveryFailsAfterExpire(t *testing.T) {
	s := newTestStore()
	id, code, err := s.Create("dev1", 1920, 1080)
	require.NoError(t, err)

	require.NoError(t, s.RecordIngestedResource(id, "r1", "k1"))
	require.NoError(t, s.MarkReady(id))

	pkg, err := s.DeliverPackage(id, "dev1", code)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r1": "k1"}, pkg)

	// The caller expires right after delivery; the code must not be
	// servable again.
	s.Expire(id)

	_, err = s.DeliverPackage(id, "dev1", code)
	assert.ErrorIs(t, err, common.ErrAuthFailure)
	assert.Equal(t, StatusExpired, s.PollStatus(id, "dev1", code).State)
}

func TestDeliverPackage_WrongBinding(t *testing.T) {
	s := newTestStore()
	id, code, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	_, err = s.DeliverPackage(id, "dev2", code)
	assert.ErrorIs(t, err, common.ErrAuthFailure)

	_, err = s.DeliverPackage(id, "dev1", "WRONG77")
	assert.ErrorIs(t, err, common.ErrAuthFailure)
}

func TestAttachSourceLinks_ClearedOnReady(t *testing.T) {
	s := newTestStore()
	id, _, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	require.NoError(t, s.AttachSourceLinks(id, []string{"u1", "u2"}))

	snap, err := s.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, snap.PendingSourceLinks)

	require.NoError(t, s.MarkReady(id))

	snap, err = s.Snapshot(id)
	require.NoError(t, err)
	assert.Empty(t, snap.PendingSourceLinks)
}

func TestTTL_EvictsSessions(t *testing.T) {
	s := NewStore(128, 50*time.Millisecond)
	id, code, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, StatusExpired, s.PollStatus(id, "dev1", code).State)
	assert.ErrorIs(t, s.MarkReady(id), common.ErrExpired)
}

func TestRecordIngestedResource_ConcurrentNoLostUpdates(t *testing.T) {
	s := newTestStore()
	id, _, err := s.Create("dev1", 800, 600)
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			err := s.RecordIngestedResource(id, fmt.Sprintf("r%d", i), fmt.Sprintf("k%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := s.Snapshot(id)
	require.NoError(t, err)
	assert.Len(t, snap.ResourcePackage, n)
}
