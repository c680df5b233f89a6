package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertFromUSD_IdentityWithoutRates(t *testing.T) {
	t.Setenv("EXCHANGE_RATE_API_KEY", "")

	// USD-to-USD must work even when the rates API is unreachable.
	got, err := ConvertFromUSD(42.5, "USD")
	require.NoError(t, err)
	assert.Equal(t, 42.5, got)

	got, err = ConvertFromUSD(10, "usd")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	// Any other currency still needs the rates cache.
	_, err = ConvertFromUSD(10, "KES")
	assert.Error(t, err)
}
