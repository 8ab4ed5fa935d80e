package authflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState(t *testing.T) {
	state, err := newState(42)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(state, "user_42_"))
	// 32 random bytes in unpadded base64url
	assert.Len(t, strings.TrimPrefix(state, "user_42_"), 43)

	other, err := newState(42)
	require.NoError(t, err)
	assert.NotEqual(t, state, other)
}

func TestParseState(t *testing.T) {
	tests := []struct {
		state   string
		want    int64
		wantErr bool
	}{
		{state: "user_42_abc", want: 42},
		{state: "user_42_a_b-c", want: 42},
		{state: "user_42", want: 42},
		{state: "user_-7_x", want: -7},
		{state: "user__x", wantErr: true},
		{state: "user_abc_x", wantErr: true},
		{state: "admin_42_x", wantErr: true},
		{state: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got, err := ParseState(tt.state)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
