package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterventionPreferences_Apply(t *testing.T) {
	start := InterventionPreferences{MutedChannelIDs: []string{"c1"}}
	tests := []struct {
		name string
		mode NudgeMode
		want InterventionPreferences
	}{
		{"off keeps mutes", NudgesOff, InterventionPreferences{OptOut: true, MutedChannelIDs: []string{"c1"}}},
		{"on clears everything", NudgesOn, InterventionPreferences{}},
		{"mute twice is one entry", NudgesMute, InterventionPreferences{MutedChannelIDs: []string{"c1"}}},
		{"unmute last channel", NudgesUnmute, InterventionPreferences{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := start.Apply(tt.mode, "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, []string{"c1"}, start.MutedChannelIDs)

	_, err := start.Apply("maybe", "c1")
	assert.ErrorIs(t, err, ErrUnknownNudgeMode)
}

func TestInterventionPreferences_Blocks(t *testing.T) {
	assert.False(t, InterventionPreferences{}.Blocks("c1"))
	assert.True(t, InterventionPreferences{OptOut: true}.Blocks("c1"))
	assert.True(t, InterventionPreferences{MutedChannelIDs: []string{"c1"}}.Blocks("c1"))
	assert.False(t, InterventionPreferences{MutedChannelIDs: []string{"c1"}}.Blocks("c2"))
}
