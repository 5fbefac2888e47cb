package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasi-host/errors"
)

func TestStringListRoundTrip(t *testing.T) {
	acc := New(NewBuffer(256))
	list := []string{"app", "--name=x", ""}

	count, size := StringListSize(list)
	assert.Equal(t, uint32(3), count)
	assert.Equal(t, uint32(4+9+1), size)

	require.NoError(t, acc.WriteStringList(list, 0, 64))

	got, err := acc.ReadStringList(0, count)
	require.NoError(t, err)
	assert.Equal(t, list, got)

	raw, err := acc.Read(64, size)
	require.NoError(t, err)
	assert.Equal(t, []byte("app\x00--name=x\x00\x00"), raw)
}

func TestWriteStringListValidatesBothRegions(t *testing.T) {
	buf := NewBuffer(32)
	acc := New(buf)
	before, _ := acc.Read(0, 32)

	// pointer array fits, string buffer does not
	err := acc.WriteStringList([]string{"abcdefgh", "ijklmnop"}, 0, 20)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))

	after, _ := acc.Read(0, 32)
	assert.Equal(t, before, after)
}

func TestReadNullableString(t *testing.T) {
	acc := New(NewBuffer(16))
	require.NoError(t, acc.Write(0, []byte("key=val\x00")))

	s, err := acc.ReadNullableString(0)
	require.NoError(t, err)
	assert.Equal(t, "key=val", s)

	require.NoError(t, acc.Write(8, []byte("unterminated")[:8]))
	_, err = acc.ReadNullableString(8)
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))

	_, err = acc.ReadNullableString(16)
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))
}

func TestIovecGatherScatter(t *testing.T) {
	acc := New(NewBuffer(128))
	require.NoError(t, acc.Write(64, []byte("hello world")))

	// two iovecs at 0: (64,5) and (69,6)
	require.NoError(t, acc.WriteU32(0, 64))
	require.NoError(t, acc.WriteU32(4, 5))
	require.NoError(t, acc.WriteU32(8, 69))
	require.NoError(t, acc.WriteU32(12, 6))

	iovs, err := acc.ReadIovecs(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []Iovec{{64, 5}, {69, 6}}, iovs)
	assert.Equal(t, uint32(11), Capacity(iovs))

	data, err := acc.Gather(iovs)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	n, err := acc.Scatter([]Iovec{{100, 3}, {110, 10}}, []byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), n)
	first, _ := acc.ReadString(100, 3)
	second, _ := acc.ReadString(110, 3)
	assert.Equal(t, "abc", first)
	assert.Equal(t, "def", second)
}

func TestScatterRejectsBadIovecBeforeWriting(t *testing.T) {
	acc := New(NewBuffer(32))
	_, err := acc.Scatter([]Iovec{{0, 4}, {30, 8}}, []byte("abcdefgh"))
	require.Error(t, err)

	got, _ := acc.Read(0, 4)
	assert.Equal(t, []byte{0, 0, 0, 0}, got)
}

func TestGatherOutOfBounds(t *testing.T) {
	acc := New(NewBuffer(16))
	_, err := acc.Gather([]Iovec{{0, 4}, {12, 8}})
	assert.True(t, errors.IsKind(err, errors.KindOutOfBounds))
}
