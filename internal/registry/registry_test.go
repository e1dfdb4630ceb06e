package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookup_Known(t *testing.T) {
	ex, err := Lookup("nyse")
	require.NoError(t, err)
	require.Equal(t, "XNYS", ex.MIC)
	require.Equal(t, "America/New_York", ex.Timezone)
	require.Equal(t, "is_nyse_session", ex.SessionColumn())
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("nasdaq")
	require.ErrorIs(t, err, ErrUnknownExchange)
	require.Contains(t, err.Error(), "nasdaq")
	require.Contains(t, err.Error(), "nyse")
}

func TestKeys_CountAndStability(t *testing.T) {
	keys := Keys()
	require.Len(t, keys, 10)
	require.Equal(t, Count(), len(keys))

	keys[0] = "mutated"
	again := Keys()
	require.NotEqual(t, "mutated", again[0])
}

func TestAll_CoversEveryKey(t *testing.T) {
	all := All()
	require.Len(t, all, Count())
	for _, ex := range all {
		got, err := Lookup(ex.Key)
		require.NoError(t, err)
		require.Equal(t, ex, got)
	}
}

func TestExchange_Hours(t *testing.T) {
	cases := map[string]struct {
		openH, openM, closeH, closeM int
	}{
		"xtks": {9, 0, 15, 0},
		"xnze": {10, 0, 16, 45},
		"lse":  {8, 0, 16, 30},
	}
	for key, want := range cases {
		ex, err := Lookup(key)
		require.NoError(t, err)
		require.Equal(t, want.openH, ex.OpenHour, key)
		require.Equal(t, want.openM, ex.OpenMinute, key)
		require.Equal(t, want.closeH, ex.CloseHour, key)
		require.Equal(t, want.closeM, ex.CloseMinute, key)
	}
}
