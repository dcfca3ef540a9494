package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAirsAtAddsDuration(t *testing.T) {
	e := ScheduleEntry{
		AiringAt: 1000,
		Media:    Media{Duration: 24},
	}
	assert.Equal(t, int64(1000+24*60), e.AirsAt())
}

func TestAirsAtWithoutDuration(t *testing.T) {
	e := ScheduleEntry{AiringAt: 1000}
	assert.Equal(t, int64(1000), e.AirsAt())
}

func TestHasSource(t *testing.T) {
	assert.True(t, Media{Source: "MANGA"}.HasSource())
	assert.False(t, Media{Source: "ORIGINAL"}.HasSource())
	assert.False(t, Media{}.HasSource())
}

func TestAiring(t *testing.T) {
	assert.True(t, Media{Status: "RELEASING"}.Airing())
	assert.True(t, Media{Status: "NOT_YET_RELEASED"}.Airing())
	assert.False(t, Media{Status: "FINISHED"}.Airing())
	assert.False(t, Media{Status: "CANCELLED"}.Airing())
}
