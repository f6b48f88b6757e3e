package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPositions(t *testing.T) {
	tests := []struct {
		name      string
		positions []int
		want      string
	}{
		{"none", nil, ""},
		{"single", []int{3}, "3"},
		{"several", []int{1, 4, 9}, "1, 4, 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPositions(tt.positions))
		})
	}
}
