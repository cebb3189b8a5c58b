package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, NewDate(2024, 2, 29), d)

	_, err = ParseDate("02/29/2024")
	require.Error(t, err)
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC)
	require.Equal(t, NewDate(2024, 3, 9), StartOfDay(in))
}
