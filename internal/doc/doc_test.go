package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderoomhq/coderoom-backend/internal/protocol"
)

func op(text string, sl, sc, el, ec int) protocol.EditOp {
	return protocol.EditOp{Text: text, StartLine: sl, StartCol: sc, EndLine: el, EndCol: ec}
}

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		base string
		op   protocol.EditOp
		want string
	}{
		{"replace one char", "print(1)", op("2", 1, 7, 1, 8), "print(2)"},
		{"insert at empty range", "print()", op("42", 1, 7, 1, 7), "print(42)"},
		{"delete range", "print(42)", op("", 1, 7, 1, 9), "print()"},
		{"append at end of line", "ab", op("c", 1, 3, 1, 3), "abc"},
		{"insert newline", "ab", op("\n", 1, 2, 1, 2), "a\nb"},
		{"join two lines", "a\nb", op("", 1, 2, 2, 1), "ab"},
		{"replace across lines", "one\ntwo\nthree", op("X", 1, 2, 3, 3), "oXree"},
		{"multi-line insert", "ac", op("\nb\n", 1, 2, 1, 2), "a\nb\nc"},
		{"empty document insert", "", op("hi", 1, 1, 1, 1), "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Apply(New(tc.base), tc.op)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Text())
		})
	}
}

func TestApply_UnicodeColumnsAreCharacters(t *testing.T) {
	// Columns count characters, so col 2 of "héllo" is the é itself.
	d, err := Apply(New("héllo"), op("e", 1, 2, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Text())
}

func TestApply_RangeOutOfBounds(t *testing.T) {
	cases := []struct {
		name string
		base string
		op   protocol.EditOp
	}{
		{"line past end", "print(1)", op("x", 2, 1, 2, 1)},
		{"end line past end", "a\nb", op("x", 1, 1, 3, 1)},
		{"column past line end", "abc", op("x", 1, 5, 1, 5)},
		{"end column past line end", "abc", op("x", 1, 1, 1, 6)},
		{"zero line", "abc", op("x", 0, 1, 1, 1)},
		{"zero column", "abc", op("x", 1, 0, 1, 1)},
		{"inverted lines", "a\nb", op("x", 2, 1, 1, 1)},
		{"inverted columns", "abc", op("x", 1, 3, 1, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := New(tc.base)
			d, err := Apply(base, tc.op)
			assert.ErrorIs(t, err, ErrRangeOutOfBounds)
			assert.Equal(t, tc.base, d.Text(), "rejected op must not mutate")
		})
	}
}

func TestApplyAll_SequentialDeterminism(t *testing.T) {
	ops := []protocol.EditOp{
		op("hello", 1, 1, 1, 1),
		op("\nworld", 1, 6, 1, 6),
		op("W", 2, 1, 2, 2),
	}
	first, err := ApplyAll(New(""), ops)
	require.NoError(t, err)
	second, err := ApplyAll(New(""), ops)
	require.NoError(t, err)
	assert.Equal(t, "hello\nWorld", first.Text())
	assert.Equal(t, first.Text(), second.Text())
}

func TestApplyAll_BatchIsAtomic(t *testing.T) {
	ops := []protocol.EditOp{
		op("x", 1, 1, 1, 1),
		op("y", 9, 1, 9, 1), // out of bounds
	}
	d, err := ApplyAll(New("abc"), ops)
	assert.ErrorIs(t, err, ErrRangeOutOfBounds)
	assert.Equal(t, "abc", d.Text())
}

func TestApply_DoesNotAliasOriginal(t *testing.T) {
	base := New("abc\ndef")
	edited, err := Apply(base, op("X", 1, 1, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, "Xbc\ndef", edited.Text())
	assert.Equal(t, "abc\ndef", base.Text())
}

func TestLineAccessors(t *testing.T) {
	d := New("abc\n\nxy")
	assert.Equal(t, 3, d.LineCount())
	assert.Equal(t, 3, d.LineLen(1))
	assert.Equal(t, 0, d.LineLen(2))
	assert.Equal(t, 2, d.LineLen(3))
	assert.Equal(t, -1, d.LineLen(0))
	assert.Equal(t, -1, d.LineLen(4))
}
