package component

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinforge/twinforge/pkg/errdefs"
)

func TestParseSourceRange(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    SourceRange
		wantErr bool
	}{
		{name: "empty means latest", raw: "", want: SourceRange{Count: 1}},
		{name: "count mode", raw: "10", want: SourceRange{Count: 10}},
		{name: "days", raw: "7d", want: SourceRange{Window: 7 * 24 * time.Hour}},
		{name: "hours", raw: "12h", want: SourceRange{Window: 12 * time.Hour}},
		{name: "minutes", raw: "30m", want: SourceRange{Window: 30 * time.Minute}},
		{name: "seconds", raw: "45s", want: SourceRange{Window: 45 * time.Second}},
		{name: "trimmed", raw: " 5 ", want: SourceRange{Count: 5}},
		{name: "zero count", raw: "0", wantErr: true},
		{name: "negative count", raw: "-3", wantErr: true},
		{name: "unknown suffix", raw: "10w", wantErr: true},
		{name: "garbage", raw: "soon", wantErr: true},
		{name: "suffix only", raw: "d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSourceRange(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errdefs.IsKind(err, errdefs.KindConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSourceRangeTimeMode(t *testing.T) {
	assert.False(t, SourceRange{Count: 3}.TimeMode())
	assert.True(t, SourceRange{Window: time.Hour}.TimeMode())
}
