package manifest_test

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/manifest"
)

func openStore(t *testing.T) *manifest.Store {
	t.Helper()
	s, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBatch(t *testing.T, s *manifest.Store, batchID string) []domain.SubRequest {
	t.Helper()
	spec := domain.RequestSpec{
		Variables: []string{"2m_temperature", "total_precipitation"},
		StartYear: 2020,
		EndYear:   2021,
		Area:      domain.IndiaArea,
		Format:    domain.FormatZip,
	}
	subs, err := domain.BuildSubRequests(spec, 2000)
	require.NoError(t, err)
	for i := range subs {
		subs[i].BatchID = batchID
	}
	require.NoError(t, s.CreateBatch(batchID, spec, subs))
	return subs
}

func TestCreateBatchAndCounts(t *testing.T) {
	s := openStore(t)
	subs := seedBatch(t, s, "batch-1")

	counts, err := s.StatusCounts("batch-1")
	require.NoError(t, err)
	assert.Equal(t, len(subs), counts.Pending)
	assert.False(t, counts.Done())
}

func TestCreateBatch_DuplicateIDFails(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s, "batch-1")

	err := s.CreateBatch("batch-1", domain.RequestSpec{}, nil)
	assert.Error(t, err)
}

func TestTransition(t *testing.T) {
	s := openStore(t)
	subs := seedBatch(t, s, "batch-1")

	err := s.Transition("batch-1", subs[0].ID, domain.StatusComplete, 1, "", "/data/raw/2020/a.zip")
	require.NoError(t, err)

	counts, err := s.StatusCounts("batch-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Complete)
	assert.Equal(t, len(subs)-1, counts.Pending)

	got, err := s.SubRequests("batch-1", domain.StatusComplete)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, subs[0].ID, got[0].ID)
	assert.Equal(t, 1, got[0].Attempts)
	assert.Equal(t, "/data/raw/2020/a.zip", got[0].FilePath)
}

func TestTransition_UnknownSubRequest(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s, "batch-1")

	err := s.Transition("batch-1", "nope", domain.StatusComplete, 1, "", "")
	assert.ErrorContains(t, err, "not found")
}

func TestSubRequests_FilterAndOrder(t *testing.T) {
	s := openStore(t)
	subs := seedBatch(t, s, "batch-1")

	require.NoError(t, s.Transition("batch-1", subs[1].ID, domain.StatusFailed, 3, "status 400", ""))

	failed, err := s.SubRequests("batch-1", domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "status 400", failed[0].LastError)

	all, err := s.SubRequests("batch-1")
	require.NoError(t, err)
	require.Len(t, all, len(subs))
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Year, all[i].Year)
	}

	// Fields survive the round trip.
	assert.Equal(t, subs[0].Variables, all[0].Variables)
	assert.Equal(t, subs[0].Area, all[0].Area)
	assert.Equal(t, subs[0].StartMonth, all[0].StartMonth)
}

func TestStatusCounts_UnknownBatch(t *testing.T) {
	s := openStore(t)

	_, err := s.StatusCounts("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSpecRoundTrip(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s, "batch-1")

	spec, err := s.Spec("batch-1")
	require.NoError(t, err)

	expected := domain.RequestSpec{
		Variables: []string{"2m_temperature", "total_precipitation"},
		StartYear: 2020,
		EndYear:   2021,
		Area:      domain.IndiaArea,
		Format:    domain.FormatZip,
	}
	if diff := cmp.Diff(expected, spec); diff != "" {
		t.Fatalf("spec roundtrip mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Spec("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestBatches(t *testing.T) {
	s := openStore(t)
	seedBatch(t, s, "batch-1")
	seedBatch(t, s, "batch-2")

	ids, err := s.Batches()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"batch-1", "batch-2"}, ids)
}
