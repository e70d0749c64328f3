package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	corpus *corpus.Corpus
	fails  int32
	calls  atomic.Int32
}

func (s *staticSource) Load(context.Context) (*corpus.Corpus, error) {
	if s.calls.Add(1) <= s.fails {
		return nil, errors.New("transient")
	}
	return s.corpus, nil
}

type badSource struct{ calls atomic.Int32 }

func (b *badSource) Load(context.Context) (*corpus.Corpus, error) {
	b.calls.Add(1)
	return nil, apperrors.ErrInvalidInput
}

func newRegistry() *Registry {
	r := New(config.Default(), nil, nil)
	r.retry.InitialDelay = 1
	return r
}

func TestRegisterAndGet(t *testing.T) {
	r := newRegistry()
	_, err := r.Register("libc", nil)
	require.NoError(t, err)
	_, err = r.Register("libc", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = r.Register("", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = r.Get("posix")
	assert.ErrorIs(t, err, apperrors.ErrCorpusNotFound)
	assert.Equal(t, []string{"libc"}, r.Names())
	assert.False(t, r.AllReady())
}

func TestLoadAllRetriesTransientFailures(t *testing.T) {
	r := newRegistry()
	flaky := &staticSource{corpus: corpus.FromTexts("alpha beta"), fails: 2}
	steady := &staticSource{corpus: corpus.FromTexts("gamma")}
	_, err := r.Register("flaky", flaky)
	require.NoError(t, err)
	_, err = r.Register("steady", steady)
	require.NoError(t, err)

	require.NoError(t, r.LoadAll(context.Background()))
	assert.Equal(t, int32(3), flaky.calls.Load())
	assert.True(t, r.AllReady())

	s, err := r.Get("flaky")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, s.Search("beta", searcher.SearchOptions{}).BlockIDs)
}

func TestLoadAllDoesNotRetryInvalidInput(t *testing.T) {
	r := newRegistry()
	bad := &badSource{}
	_, err := r.Register("bad", bad)
	require.NoError(t, err)
	_, err = r.Register("good", &staticSource{corpus: corpus.FromTexts("fine")})
	require.NoError(t, err)

	err = r.LoadAll(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, int32(1), bad.calls.Load())
	assert.True(t, r.Ready("good"))
	assert.False(t, r.Ready("bad"))
}

func TestReindexInlineCorpus(t *testing.T) {
	r := newRegistry()
	_, err := r.Register("inline", nil)
	require.NoError(t, err)

	_, err = r.Reindex(context.Background(), "inline", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	v1, err := r.Reindex(context.Background(), "inline", corpus.FromTexts("one"))
	require.NoError(t, err)
	v2, err := r.Reindex(context.Background(), "inline", corpus.FromTexts("two"))
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	dup := &corpus.Corpus{Blocks: []corpus.Block{{ID: 1}, {ID: 1}}}
	_, err = r.Reindex(context.Background(), "inline", dup)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = r.Reindex(context.Background(), "missing", corpus.FromTexts("x"))
	assert.ErrorIs(t, err, apperrors.ErrCorpusNotFound)

	require.NoError(t, r.Wait(context.Background()))
	st := r.Status()
	require.Len(t, st, 1)
	assert.Equal(t, v2, st[0].Version)
	assert.Equal(t, 1, st[0].Blocks)
}

func TestSourceFor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blocks:\n  - id: 0\n    text: hello\n"), 0o600))

	src, err := SourceFor(config.CorpusConfig{Name: "c", File: path}, nil)
	require.NoError(t, err)
	c, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Blocks, 1)

	_, err = SourceFor(config.CorpusConfig{Name: "pg", Postgres: true}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = SourceFor(config.CorpusConfig{Name: "none"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
