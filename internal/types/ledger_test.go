package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyBucket_AddMinutesKeepsTotalsConsistent(t *testing.T) {
	bucket := NewDailyBucket()

	bucket.AddMinutes("github.com", 2, CategoryProductive)
	bucket.AddMinutes("youtube.com", 5, CategoryDistracting)
	bucket.AddMinutes("example.org", 1, CategoryNeutral)
	bucket.AddMinutes("github.com", 3, CategoryProductive)

	sums := bucket.SumByCategory()
	assert.Equal(t, int64(5), bucket.ProductiveMinutes)
	assert.Equal(t, int64(5), bucket.DistractingMinutes)
	assert.Equal(t, int64(1), bucket.NeutralMinutes)
	for _, c := range []Category{CategoryProductive, CategoryDistracting, CategoryNeutral} {
		assert.Equal(t, sums[c], bucket.CategoryMinutes(c), "category %s", c)
	}
}

func TestDailyBucket_CategoryFixedAtFirstSight(t *testing.T) {
	bucket := NewDailyBucket()

	bucket.AddMinutes("reddit.com", 4, CategoryDistracting)
	got := bucket.AddMinutes("reddit.com", 2, CategoryProductive)

	assert.Equal(t, CategoryDistracting, got)
	assert.Equal(t, int64(6), bucket.Domains["reddit.com"].TimeSpent)
	assert.Equal(t, int64(6), bucket.DistractingMinutes)
	assert.Zero(t, bucket.ProductiveMinutes)
}

func TestDailyBucket_AddTasksCompletedClampsAtZero(t *testing.T) {
	bucket := NewDailyBucket()

	bucket.AddTasksCompleted(1)
	bucket.AddTasksCompleted(-1)
	bucket.AddTasksCompleted(-1)
	bucket.AddTasksCompleted(-1)

	assert.Zero(t, bucket.TasksCompleted)
}

func TestLedger_BucketCreatesZeroInitialized(t *testing.T) {
	ledger := Ledger{}

	bucket := ledger.Bucket("2024-03-01")

	require.NotNil(t, bucket)
	assert.NotNil(t, bucket.Domains)
	assert.Empty(t, bucket.Domains)
	assert.Zero(t, bucket.ProductiveMinutes)
	assert.Zero(t, bucket.DistractingMinutes)
	assert.Zero(t, bucket.NeutralMinutes)
	assert.Zero(t, bucket.TasksCompleted)
	assert.Same(t, bucket, ledger.Bucket("2024-03-01"))
}

func TestLedger_DatesNewestFirst(t *testing.T) {
	ledger := Ledger{
		"2024-03-01": NewDailyBucket(),
		"2024-03-03": NewDailyBucket(),
		"2024-02-28": NewDailyBucket(),
	}

	assert.Equal(t, []string{"2024-03-03", "2024-03-01", "2024-02-28"}, ledger.Dates())
}

func TestLedger_CloneIsDeep(t *testing.T) {
	ledger := Ledger{}
	ledger.Bucket("2024-03-01").AddMinutes("github.com", 1, CategoryProductive)

	clone := ledger.Clone()
	clone["2024-03-01"].AddMinutes("github.com", 10, CategoryProductive)

	assert.Equal(t, int64(1), ledger["2024-03-01"].Domains["github.com"].TimeSpent)
	assert.Equal(t, int64(11), clone["2024-03-01"].Domains["github.com"].TimeSpent)
}

func TestDateKey_UsesUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	// 08:00 local on the 2nd is 22:00 UTC on the 1st
	ts := time.Date(2024, 3, 2, 8, 0, 0, 0, loc)

	assert.Equal(t, "2024-03-01", DateKey(ts))

	parsed, err := ParseDateKey("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), parsed)
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"productive", CategoryProductive, true},
		{"distracting", CategoryDistracting, true},
		{"neutral", CategoryNeutral, true},
		{"Productive", CategoryNeutral, false},
		{"", CategoryNeutral, false},
	}
	for _, tt := range tests {
		got, ok := ParseCategory(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}
