package textnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJudgeNameFoldsWidthAndWhitespace(t *testing.T) {
	t.Parallel()

	// Full-width Latin and ideographic space vs plain ASCII.
	require.Equal(t, JudgeName("Ｔａｎａｋａ　Ｔａｒｏ"), JudgeName("Tanaka Taro"))
	require.Equal(t, "田中太郎", JudgeName("田中　太郎"))
	require.Equal(t, "田中太郎", JudgeName("  田中 太郎\t"))
}

func TestJudgeNameDistinctNamesStayDistinct(t *testing.T) {
	t.Parallel()

	require.NotEqual(t, JudgeName("田中太郎"), JudgeName("田中次郎"))
}

func TestKeySegmentReplacesSeparators(t *testing.T) {
	t.Parallel()

	require.Equal(t, "令和5(受)123_456", KeySegment("令和5(受)123/456"))
	require.Equal(t, "a_b", KeySegment(`a\b`))
	require.Equal(t, "abc", KeySegment("  abc "))
	// Full-width parens fold to ASCII under NFKC.
	require.Equal(t, KeySegment("令和5（受）123"), KeySegment("令和5(受)123"))
}
