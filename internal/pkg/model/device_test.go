package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleRecord_Unmarshal(t *testing.T) {
	tests := map[string]struct {
		input string
		want  ModuleRecord
	}{
		"numeric fields": {
			input: `{"id":42,"data":"abc","status":"def","version_data":3,"version_status":7}`,
			want:  ModuleRecord{ID: 42, Data: "abc", Status: "def", VersionData: 3, VersionStatus: 7},
		},
		"string fields": {
			input: `{"id":"26087308","data":"abc","status":null,"version_data":"12","version_status":"0"}`,
			want:  ModuleRecord{ID: 26087308, Data: "abc", VersionData: 12},
		},
		"empty strings": {
			input: `{"id":"5","device":"","version_status":""}`,
			want:  ModuleRecord{ID: 5},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var got ModuleRecord
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlexInt_RejectsGarbage(t *testing.T) {
	var fi FlexInt
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &fi))
	assert.Error(t, json.Unmarshal([]byte(`{}`), &fi))
}

func TestConfidence_String(t *testing.T) {
	assert.Equal(t, "high", ConfidenceHigh.String())
	assert.Equal(t, "medium", ConfidenceMedium.String())
	assert.Equal(t, "low", ConfidenceLow.String())
	assert.Equal(t, "uncertain", ConfidenceUncertain.String())
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventCommandSent, "001122334455")
	assert.NotEqual(t, [16]byte{}, [16]byte(ev.ID))
	assert.Equal(t, EventCommandSent, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
}
