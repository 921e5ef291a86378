package rpcsvc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// TestBuildAnalogResponseScenario1 reproduces §8 scenario 1: injecting
// [1,2,3] on channel "A" with a 1ms interval and subscribing without a
// channel filter yields one span {name:"A", begin:0, end:3} and one
// interval of 1_000_000ns.
func TestBuildAnalogResponseScenario1(t *testing.T) {
	frame := &modality.AnalogFrame{
		ChannelNames:     []string{"A"},
		Data:             [][]float64{{1, 2, 3}},
		SampleIntervalNs: []int64{1_000_000},
	}
	idx, ready := selectChannels(NodeSelector{Node: "ni"}, frame)
	require.True(t, ready, "expected selectChannels to be ready with no filter")
	resp := buildAnalogResponse(frame, idx)
	require.Equal(t, []float64{1, 2, 3}, resp.Data)
	require.Equal(t, []Span{{Name: "A", Begin: 0, End: 3}}, resp.Spans)
	require.Equal(t, []int64{1_000_000}, resp.SampleIntervals)
}

// TestSelectChannelsSkipsOutOfRange confirms the §9 Open Question decision:
// an out-of-range channel index is silently skipped rather than erroring.
func TestSelectChannelsSkipsOutOfRange(t *testing.T) {
	frame := &modality.AnalogFrame{ChannelNames: []string{"A", "B"}, Data: [][]float64{{1}, {2}}, SampleIntervalNs: []int64{1, 1}}
	idx, ready := selectChannels(NodeSelector{Node: "ni", Channels: []int{0, 5, 1}}, frame)
	require.True(t, ready, "expected ready=true for index-based selection")
	require.Equal(t, []int{0, 1}, idx, "expected out-of-range index 5 silently dropped")
}

// TestSelectChannelsByNameDefersUntilResolved confirms name-based selection
// defers emission (returns ready=false) until every named channel exists.
func TestSelectChannelsByNameDefersUntilResolved(t *testing.T) {
	frame := &modality.AnalogFrame{ChannelNames: []string{"A"}, Data: [][]float64{{1}}, SampleIntervalNs: []int64{1}}
	_, ready := selectChannels(NodeSelector{Node: "ni", Names: []string{"A", "B"}}, frame)
	require.False(t, ready, "expected ready=false while channel B has not yet resolved")
}
