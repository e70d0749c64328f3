package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/indexer/scheduler"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineConfig(batch int) config.EngineConfig {
	cfg := config.DefaultEngine()
	cfg.BatchSize = batch
	return cfg
}

func sampleCorpus(n int) *corpus.Corpus {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("Block %d talks about token%d and Café", i, i%7)
	}
	c := corpus.FromTexts(texts...)
	if err := c.Normalize(); err != nil {
		panic(err)
	}
	return c
}

func TestBuildImmediatePublishes(t *testing.T) {
	e := NewEngine(engineConfig(3), scheduler.Immediate{})
	assert.Nil(t, e.Snapshot())
	assert.False(t, e.Ready())

	v := e.Build(sampleCorpus(10))
	assert.Equal(t, uint64(1), v)
	require.True(t, e.Ready())

	snap := e.Snapshot()
	assert.Equal(t, v, snap.Version)
	assert.Equal(t, 10, snap.BlockCount())
	assert.Equal(t, index.PostingList{0, 7}, snap.Postings("token0"))
	assert.Len(t, snap.Postings("cafe"), 10)
}

func TestBuildDeterministicAcrossBatchSizes(t *testing.T) {
	c := sampleCorpus(25)
	var terms [][]index.TermEntry
	for _, batch := range []int{1, 4, 25, 1000} {
		e := NewEngine(engineConfig(batch), scheduler.Immediate{})
		e.Build(c)
		terms = append(terms, e.Snapshot().Terms())
	}
	for i := 1; i < len(terms); i++ {
		assert.Equal(t, terms[0], terms[i])
	}
}

func TestPartialBuildIsNeverVisible(t *testing.T) {
	var s scheduler.Stepper
	e := NewEngine(engineConfig(2), &s)

	e.Build(sampleCorpus(6))
	require.True(t, s.Step())
	assert.Nil(t, e.Snapshot())
	assert.False(t, e.Ready())

	s.Drain()
	require.NotNil(t, e.Snapshot())
	assert.Equal(t, 6, e.Snapshot().BlockCount())
}

func TestQueriesDuringRebuildSeePreviousSnapshot(t *testing.T) {
	var s scheduler.Stepper
	e := NewEngine(engineConfig(1), &s)
	e.Build(corpus.FromTexts("old text"))
	s.Drain()
	first := e.Snapshot()

	e.Build(corpus.FromTexts("new text", "more"))
	s.Step()
	assert.False(t, e.Ready())
	assert.Same(t, first, e.Snapshot())
	assert.True(t, e.Snapshot().Has("old"))

	s.Drain()
	assert.True(t, e.Ready())
	assert.True(t, e.Snapshot().Has("new"))
	assert.False(t, e.Snapshot().Has("old"))
}

func TestSupersededBuildIsDiscarded(t *testing.T) {
	var s scheduler.Stepper
	e := NewEngine(engineConfig(1), &s)

	var reports []BuildReport
	e.OnBuild(func(r BuildReport) { reports = append(reports, r) })

	v1 := e.Build(corpus.FromTexts("alpha", "beta", "gamma"))
	s.Step()
	v2 := e.Build(corpus.FromTexts("delta"))
	s.Drain()

	require.Len(t, reports, 2)
	assert.Equal(t, v1, reports[0].Version)
	assert.True(t, reports[0].Superseded)
	assert.Equal(t, v2, reports[1].Version)
	assert.False(t, reports[1].Superseded)
	assert.Equal(t, 1, reports[1].Vocabulary)

	snap := e.Snapshot()
	assert.Equal(t, v2, snap.Version)
	assert.False(t, snap.Has("alpha"))
	assert.True(t, snap.Has("delta"))
}

func TestWait(t *testing.T) {
	e := NewEngine(engineConfig(1), scheduler.Background{})
	require.NoError(t, e.Wait(context.Background()))

	e.Build(sampleCorpus(50))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	assert.True(t, e.Ready())
	assert.Equal(t, 50, e.Snapshot().BlockCount())
}

func TestWaitHonoursContext(t *testing.T) {
	var s scheduler.Stepper
	e := NewEngine(engineConfig(1), &s)
	e.Build(sampleCorpus(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Wait(ctx), context.Canceled)
}
