package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `timestamp,user_id,session_id,thread_id,response_id,query_text,intent_detected,intent_query_type,final_response_message,has_image,error_message
2025-06-01T10:00:00Z,u1,s1,t1,r1,log 2 rotis,meal_logging,new_meal,"Meal Summary: 240 kcal total calories",0,
2025-06-01T10:01:00Z,u1,s1,t1,r2,yes log it,meal_confirmation,confirm,"Meal logged successfully",0,
2025-06-01T11:00:00Z,u2,s2,t2,r3,what is bmi,general_query,question,"BMI is body mass index",0,
02/06/2025 09:30,u2,s2,t3,r4,log an apple,meal_logging,new_meal,"Something went wrong",1,timeout
`

func TestDataLoaderParsesAndGroups(t *testing.T) {
	loader, err := NewDataLoader(sampleCSV)
	require.NoError(t, err)

	assert.Len(t, loader.Messages(), 4)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, loader.GetAllThreadIDs())

	thread := loader.GetThread("t1")
	require.NotNil(t, thread)
	assert.Equal(t, "u1", thread.UserID)
	assert.Equal(t, 2, thread.MessageCount)
	assert.Equal(t, 60.0, thread.DurationSeconds)
	assert.False(t, thread.HasErrors)
	assert.True(t, thread.IsSuccessful())

	assert.Nil(t, loader.GetThread("missing"))
}

func TestDataLoaderThreadErrorsAndSuccess(t *testing.T) {
	loader, err := NewDataLoader(sampleCSV)
	require.NoError(t, err)

	t3 := loader.GetThread("t3")
	require.NotNil(t, t3)
	assert.True(t, t3.HasErrors)
	assert.False(t, t3.IsSuccessful())
	assert.True(t, t3.Messages[0].HasImage)
}

func TestDataLoaderStatistics(t *testing.T) {
	loader, err := NewDataLoader(sampleCSV)
	require.NoError(t, err)

	stats := loader.GetStatistics()
	assert.Equal(t, 4, stats.TotalMessages)
	assert.Equal(t, 3, stats.TotalThreads)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 2, stats.IntentDistribution["meal_logging"])
	assert.Equal(t, 1, stats.MessagesWithImages)
	assert.Equal(t, 1, stats.MessagesWithErrors)
	require.NotNil(t, stats.DateRange)
}

func TestDataLoaderRejectsMissingColumns(t *testing.T) {
	_, err := NewDataLoader("timestamp,user_id\n2025-01-01,u1\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column")
}

func TestParseTimestampDayFirstFallback(t *testing.T) {
	ts, err := ParseTimestamp("02/06/2025 09:30")
	require.NoError(t, err)
	assert.Equal(t, 6, int(ts.Month()))
	assert.Equal(t, 2, ts.Day())

	_, err = ParseTimestamp("not a date")
	require.Error(t, err)
}

func TestIsMealSummary(t *testing.T) {
	summary := ChatMessage{FinalResponseMessage: "Here is your Meal Summary: 240 Kcal"}
	assert.True(t, summary.IsMealSummary())

	greeting := ChatMessage{FinalResponseMessage: "Hello there"}
	assert.False(t, greeting.IsMealSummary())
}

func TestPreviewCacheMemoizes(t *testing.T) {
	cache, err := NewPreviewCache(4)
	require.NoError(t, err)

	first, err := cache.Preview(sampleCSV)
	require.NoError(t, err)
	second, err := cache.Preview(sampleCSV)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Equal(t, []string{"t1", "t2", "t3"}, first.ThreadIDs)
}
