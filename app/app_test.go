package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolemirror/rolemirror/internal/db/models"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"start"},
		{"link", "upsert"},
		{"mapping", "toggle"},
		{"plan", "apply"},
		{"plan", "export"},
		{"snapshot", "rollback"},
		{"reconcile", "full"},
		{"presence", "bootstrap"},
		{"status"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestLinkFlagsValidation(t *testing.T) {
	tests := []struct {
		name  string
		flags linkFlags
		ok    bool
	}{
		{"valid", linkFlags{Source: "1", Target: "2"}, true},
		{"policy", linkFlags{Source: "1", Target: "2", Policy: "manual_only"}, true},
		{"same groups", linkFlags{Source: "1", Target: "1"}, false},
		{"missing target", linkFlags{Source: "1"}, false},
		{"unknown policy", linkFlags{Source: "1", Target: "2", Policy: "latest"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.flags)
			assert.Equal(t, tt.ok, err == nil, err)
		})
	}
}

func TestMappingFlags(t *testing.T) {
	f := mappingFlags{SourceRole: "10", TargetRole: "20", Mode: "bidirectional", Policy: "manual_only", MaxDelay: 30}
	require.NoError(t, validate.Struct(f))

	m := f.mapping("main")
	assert.Equal(t, "main", m.LinkID)
	assert.True(t, m.Enabled)
	assert.Equal(t, models.SyncBidirectional, m.SyncMode)
	require.NotNil(t, m.ConflictPolicy)
	assert.Equal(t, models.PolicyManualOnly, *m.ConflictPolicy)

	f.Policy = ""
	assert.Nil(t, f.mapping("main").ConflictPolicy)

	f.Mode = "both"
	assert.Error(t, validate.Struct(f))

	f.Mode = ""
	f.MaxDelay = -1
	assert.Error(t, validate.Struct(f))
}
