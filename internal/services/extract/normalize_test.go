package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"slash numeric day first", "21/03/2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"dash numeric", "21-03-2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"dot numeric", "21.03.2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"single digit day and month", "2/1/2025", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"written month", "21 March 2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"abbreviated month", "21 Mar 2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"american style", "March 21, 2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"iso", "2025-03-21", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"ordinal suffix", "21st March 2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"label prefix", "Last Date: 21/03/2025", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
		{"label and ordinal", "Closing Date : 3rd June 2025", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)},
		{"extra whitespace", "  21   March   2025 ", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, got.Equal(tt.expected), "got %v, want %v", got, tt.expected)
		})
	}
}

func TestParseDate_Empty(t *testing.T) {
	got, err := ParseDate("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseDate("   ")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseDate_Unparseable(t *testing.T) {
	got, err := ParseDate("to be announced")
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"plain number", "350", 350},
		{"with commas", "1,284", 1284},
		{"with suffix", "1,284 Posts", 1284},
		{"with label", "Total Vacancies - 350", 350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCount(tt.input)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, *got)
		})
	}
}

func TestParseCount_Empty(t *testing.T) {
	got, err := ParseCount("")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseCount_NoNumber(t *testing.T) {
	got, err := ParseCount("various")
	assert.Error(t, err)
	assert.Nil(t, got)
}
