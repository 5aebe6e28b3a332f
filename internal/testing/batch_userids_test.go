package testing

import (
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestBatchUserIDs(t *testing.T) {
	userIDs := []string{"0", "1", "2", "3", "4", "5"}
	batches := BatchUserIDs(userIDs)
	require.Equal(t, [][2]string{{"0", "1"}, {"0", "2"}, {"0", "3"}, {"0", "4"}, {"0", "5"}}, batches)

	require.Nil(t, BatchUserIDs([]string{"0"}))
}

func TestReverseIDs(t *testing.T) {
	ids := []string{"a", "b", "c"}
	require.Equal(t, []string{"c", "b", "a"}, ReverseIDs(ids))
	require.Equal(t, []string{"a", "b", "c"}, ids)
	require.Empty(t, ReverseIDs(nil))
}

func TestRandString(t *testing.T) {
	s := RandString()
	require.Len(t, s, 10)
	require.Empty(t, strings.Trim(s, charSet))
	require.Len(t, RandStringN(3), 3)
}

func TestNewIdentity(t *testing.T) {
	a, b := NewIdentity(), NewIdentity()
	require.NotEqual(t, a.Email, b.Email)
	require.Contains(t, a.Email, "@example.com")
	require.GreaterOrEqual(t, len(a.Name), 3)
	require.GreaterOrEqual(t, len(a.Password), 8)
}
