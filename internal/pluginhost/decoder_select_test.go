package pluginhost

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecoderCandidateSortOrder(t *testing.T) {
	candidates := []DecoderCandidate{
		{PluginID: "zeta", TypeID: defaultDecoderTypeID, Score: 200},
		{PluginID: "alpha", TypeID: defaultDecoderTypeID, Score: 200},
		{PluginID: "beta", TypeID: defaultDecoderTypeID, Score: 255},
	}

	sortCandidates(candidates)

	require.Equal(t, "beta", candidates[0].PluginID, "highest score wins regardless of name")
	require.Equal(t, "alpha", candidates[1].PluginID, "ties broken lexicographically by plugin_id")
	require.Equal(t, "zeta", candidates[2].PluginID)
}
