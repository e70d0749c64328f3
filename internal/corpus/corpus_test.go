package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDerivesSections(t *testing.T) {
	c := &Corpus{Blocks: []Block{
		{ID: 10, SectionID: SectionOf(1), Text: "heading"},
		{ID: 11, SectionID: SectionOf(1), Text: "body"},
		{ID: 12, Text: "loose"},
		{ID: 13, SectionID: SectionOf(2), Text: "next"},
		{ID: 14, SectionID: SectionOf(1), Text: "late"},
	}}
	require.NoError(t, c.Normalize())
	assert.Equal(t, []Section{
		{ID: 1, BlockIDs: []int{10, 11, 14}},
		{ID: 2, BlockIDs: []int{13}},
	}, c.Sections)
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	dup := &Corpus{Blocks: []Block{{ID: 1}, {ID: 1}}}
	err := dup.Normalize()
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	dangling := &Corpus{
		Blocks:   []Block{{ID: 1}},
		Sections: []Section{{ID: 1, BlockIDs: []int{1, 2}}},
	}
	assert.ErrorIs(t, dangling.Normalize(), apperrors.ErrInvalidInput)

	negative := &Corpus{Blocks: []Block{{ID: -1}}}
	assert.ErrorIs(t, negative.Normalize(), apperrors.ErrInvalidInput)
	huge := &Corpus{Blocks: []Block{{ID: MaxBlockID + 1}}}
	assert.ErrorIs(t, huge.Normalize(), apperrors.ErrInvalidInput)
	edge := &Corpus{Blocks: []Block{{ID: 0}, {ID: MaxBlockID}}}
	assert.NoError(t, edge.Normalize())
}

func TestFingerprint(t *testing.T) {
	a := FromTexts("alpha", "beta")
	b := FromTexts("alpha", "beta")
	c := FromTexts("alpha", "beta!")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	b.Blocks[1].SectionID = SectionOf(0)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "libc.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
blocks:
  - id: 0
    section: 1
    text: "int snprintf(char *str, size_t size, const char *format, ...);"
  - id: 1
    section: 1
    text: "The functions snprintf() and vsnprintf() write at most size bytes."
  - id: 2
    text: "Unrelated paragraph."
`), 0o600))

	c, err := FileSource{Path: yamlPath}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, c.Blocks, 3)
	assert.Nil(t, c.Blocks[2].SectionID)
	assert.Equal(t, []Section{{ID: 1, BlockIDs: []int{0, 1}}}, c.Sections)

	jsonPath := filepath.Join(dir, "small.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"blocks":[{"id":4,"text":"x"}],"sections":[{"id":9,"blocks":[4]}]}`), 0o600))
	c, err = FileSource{Path: jsonPath}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Section{{ID: 9, BlockIDs: []int{4}}}, c.Sections)

	_, err = FileSource{Path: filepath.Join(dir, "missing.yaml")}.Load(context.Background())
	assert.Error(t, err)
}
