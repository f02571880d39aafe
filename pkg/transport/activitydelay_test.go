package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/event"
)

func TestActivityDelay_PassesThroughAndTracksConfiguredEvents(t *testing.T) {
	a := NewActivityDelay([]config.UploadEventEntry{{EventID: "UIOpen", TimeoutSec: 30}})

	var clock int64 = 1_000_000
	a.now = func() int64 { return clock }

	out := a.Handle(&event.Event{EventID: "UIOpen"})
	require.True(t, out.Forward)

	assert.Equal(t, 30, a.ComputeDeferUpload())

	clock += 10_000 // 10s elapsed
	assert.Equal(t, 20, a.ComputeDeferUpload())

	clock += 30_000 // window fully elapsed
	assert.Equal(t, 0, a.ComputeDeferUpload())
}

func TestActivityDelay_UntrackedEventDoesNotAffectDefer(t *testing.T) {
	a := NewActivityDelay(nil)
	out := a.Handle(&event.Event{EventID: "Anything"})
	assert.True(t, out.Forward)
	assert.Equal(t, 0, a.ComputeDeferUpload())
}
