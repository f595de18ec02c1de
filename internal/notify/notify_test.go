package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledNotifierDropsEverything(t *testing.T) {
	t.Parallel()

	n, err := New(false, nil, time.Second)
	require.NoError(t, err)
	assert.NoError(t, n.SendRunSummary(&RunSummary{Date: "2026-08-28"}))
	assert.NoError(t, n.SendMomentumHighlights(7, "2026-08-28", nil, 10))
}

func TestEnabledNotifierRequiresURLs(t *testing.T) {
	t.Parallel()

	_, err := New(true, nil, time.Second)
	require.Error(t, err)
}

func TestEnabledNotifierRejectsInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := New(true, []string{"not-a-service-url"}, time.Second)
	require.Error(t, err)
}
