package mailvault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimestampToGeneratedIDRoundTrip(t *testing.T) {
	tests := []int64{
		0,
		1,
		1503253800000,
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
	}
	for _, millis := range tests {
		id := TimestampToGeneratedID(millis)
		assert.Len(t, id, 12)
		assert.Equal(t, millis, GeneratedIDToTimestamp(id))
	}
}

func TestGeneratedIDOrderingMatchesTime(t *testing.T) {
	earlier := TimestampToGeneratedID(1503253800000)
	later := TimestampToGeneratedID(1503253800001)
	assert.True(t, FirstBiggerThanSecond(later, earlier))
	assert.False(t, FirstBiggerThanSecond(earlier, later))
	assert.False(t, FirstBiggerThanSecond(earlier, earlier))
	assert.Negative(t, CompareGeneratedIDs(earlier, later))
}

func TestGeneratedIDBounds(t *testing.T) {
	id := TimestampToGeneratedID(time.Now().UnixMilli())
	assert.True(t, FirstBiggerThanSecond(id, GeneratedMinID))
	assert.True(t, FirstBiggerThanSecond(GeneratedMaxID, id))
	assert.Equal(t, GeneratedMinID, TimestampToGeneratedID(0))
}

func TestGeneratedIDToTimestampIgnoresRandomPart(t *testing.T) {
	base := TimestampToGeneratedID(1503253800000)
	withRandom := base[:7] + "Xy9_z"
	assert.Equal(t, int64(1503253800000), GeneratedIDToTimestamp(withRandom))
}
