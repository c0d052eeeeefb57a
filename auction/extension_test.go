package auction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtensionPolicy_Apply(t *testing.T) {
	policy := ExtensionPolicy{Extension: DefaultExtension}
	end := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		want     time.Time
		extended bool
	}{
		{
			name:     "far from the end",
			now:      end.Add(-10 * time.Minute),
			want:     end,
			extended: false,
		},
		{
			name:     "just outside the window",
			now:      end.Add(-time.Minute - time.Millisecond),
			want:     end,
			extended: false,
		},
		{
			name:     "exactly on the window edge",
			now:      end.Add(-time.Minute),
			want:     end.Add(5 * time.Minute),
			extended: true,
		},
		{
			name:     "last second",
			now:      end.Add(-time.Second),
			want:     end.Add(5 * time.Minute),
			extended: true,
		},
		{
			name:     "at the end time",
			now:      end,
			want:     end,
			extended: false,
		},
		{
			name:     "after the end time",
			now:      end.Add(time.Second),
			want:     end,
			extended: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, extended := policy.Apply(end, tt.now)
			assert.Equal(t, tt.extended, extended)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestExtensionPolicy_Window(t *testing.T) {
	assert.Equal(t, time.Minute, ExtensionPolicy{Extension: 5 * time.Minute}.Window())
	assert.Equal(t, 2*time.Minute, ExtensionPolicy{Extension: 10 * time.Minute}.Window())
}
