package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRefreshPolicy(t *testing.T) {
	for _, valid := range []string{"always_refresh", "fetch_if_missing", "fetch_and_swap"} {
		policy, err := ParseRefreshPolicy(valid)
		require.NoError(t, err, valid)
		assert.Equal(t, RefreshPolicy(valid), policy)
	}

	for _, invalid := range []string{"", "ALWAYS_REFRESH", "refresh", "fetchandswap"} {
		_, err := ParseRefreshPolicy(invalid)
		assert.ErrorIs(t, err, ErrInvalidRefreshPolicy, invalid)
	}
}
