package beacon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/wire"
)

func mustEncode(t *testing.T, p wire.Packet) []byte {
	t.Helper()
	b, err := wire.EncodePacket(p)
	require.NoError(t, err)
	return b
}

func TestSynthStatus_RoundTrip(t *testing.T) {
	status := synthStatus(1_500_000, true)

	p, err := wire.DecodePacket(mustEncode(t, &status))
	require.NoError(t, err)
	got, ok := p.(*wire.Status)
	require.True(t, ok, "decoded %T", p)

	assert.Equal(t, int64(1_500_000), got.Timestamp)
	require.NotNil(t, got.World)
	assert.Len(t, got.World.Yellow, synthRobots)
	assert.Len(t, got.World.Blue, synthRobots)
	assert.NotNil(t, got.Geometry)
	assert.NotNil(t, got.Game)
}

func TestSynthStatus_WithoutMeta(t *testing.T) {
	status := synthStatus(0, false)
	assert.Nil(t, status.Geometry)
	assert.Nil(t, status.Game)
	assert.LessOrEqual(t, len(mustEncode(t, &status)), wire.MaxDatagramSize)
}

func TestSynthVisualization_Groups(t *testing.T) {
	for frame := 0; frame < 4; frame++ {
		u := synthVisualization(frame, nil)
		require.NotNil(t, u.Group, "frame %d", frame)
		assert.Equal(t, uint32(synthVisGroups), u.Group.GroupCount, "frame %d", frame)
		assert.Equal(t, uint32(frame%synthVisGroups), u.Group.Group, "frame %d", frame)
		assert.Len(t, u.Sets, 1, "frame %d", frame)
	}
}

func TestSynthVisualization_Selection(t *testing.T) {
	u := synthVisualization(0, []uint32{visRobotMarkers})
	assert.Empty(t, u.Sets, "group 0 overlay should be filtered out")

	u = synthVisualization(1, []uint32{visRobotMarkers})
	assert.Len(t, u.Sets, 1, "group 1 overlay should be kept")
}
