package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

func TestProgressHubDeliversAndCloses(t *testing.T) {
	hub := NewProgressHub()
	events, release := hub.Subscribe("r1")
	other, releaseOther := hub.Subscribe("r2")
	defer releaseOther()

	hub.Publish(ProgressEvent{RunID: "r1", Index: 0, Result: models.GenerationResult{Status: models.StatusAnalyzing}})
	hub.Finish("r1", models.RunStatusCompleted)

	ev := <-events
	assert.Equal(t, models.StatusAnalyzing, ev.Result.Status)
	final := <-events
	assert.True(t, final.Final)
	_, open := <-events
	assert.False(t, open)
	assert.Len(t, other, 0)

	// release after finish is a no-op
	release()
	assert.Equal(t, 0, hub.Subscribers("r1"))
	assert.Equal(t, 1, hub.Subscribers("r2"))
}

func TestProgressHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewProgressHub()
	events, release := hub.Subscribe("r1")
	defer release()

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(ProgressEvent{RunID: "r1", Index: i})
	}
	require.Len(t, events, subscriberBuffer)
}
