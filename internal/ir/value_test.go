package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, IRNull{}))
	assert.True(t, Equal(IRString("a"), IRString("a")))
	assert.False(t, Equal(IRString("1"), IRInt(1)))
	assert.True(t, Equal(IRArray{IRInt(1), IRBool(true)}, IRArray{IRInt(1), IRBool(true)}))
	assert.False(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(2)}))
	assert.True(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"a": IRInt(1)}))
	assert.False(t, Equal(IRObject{"a": IRInt(1)}, IRObject{"b": IRInt(1)}))
	assert.False(t, Equal(IRNull{}, IRString("")))
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "x",
		"count": 3,
		"ok":    true,
		"tags":  []any{"a", int64(2)},
		"none":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"name":  IRString("x"),
		"count": IRInt(3),
		"ok":    IRBool(true),
		"tags":  IRArray{IRString("a"), IRInt(2)},
		"none":  IRNull{},
	}, v)

	v, err = FromGo(float64(4))
	require.NoError(t, err)
	assert.Equal(t, IRInt(4), v)

	_, err = FromGo(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = FromGo(struct{}{})
	require.Error(t, err)
}

func TestToGo(t *testing.T) {
	for _, tc := range []struct {
		in   IRValue
		want any
	}{
		{IRNull{}, nil},
		{IRString("s"), "s"},
		{IRInt(7), int64(7)},
		{IRBool(false), false},
	} {
		got, err := ToGo(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ToGo(IRArray{})
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, `"a b"`, Format(IRString("a b")))
	assert.Equal(t, "null", Format(nil))
	assert.Equal(t, "-3", Format(IRInt(-3)))
	assert.Equal(t, `[1, "x"]`, Format(IRArray{IRInt(1), IRString("x")}))
	assert.Equal(t, `{"a": true, "b": 2}`, Format(IRObject{"b": IRInt(2), "a": IRBool(true)}))
}

func TestMarshalIRValue(t *testing.T) {
	data, err := MarshalIRValue(IRObject{"z": IRNull{}, "a": IRArray{IRInt(1)}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1],"z":null}`, string(data))
	assert.Equal(t, `{"a":[1],"z":null}`, string(data))
}
