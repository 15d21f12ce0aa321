package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-crawler/internal/adapter"
	"metadata-crawler/internal/analyzer"
	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/store"
)

// fakeAdapter 测试用数据源
type fakeAdapter struct {
	id         string
	containers []string
	fields     map[string][]adapter.RawField
	errs       map[string]error
	listErr    error
	onExtract  func(container string) // 抽取时回调，用于取消/冲突场景
}

func (f *fakeAdapter) SourceID() string { return f.id }

func (f *fakeAdapter) Containers(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.containers, nil
}

func (f *fakeAdapter) ExtractContainer(ctx context.Context, name string) ([]adapter.RawField, error) {
	if f.onExtract != nil {
		f.onExtract(name)
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.fields[name], nil
}

func (f *fakeAdapter) Close() error { return nil }

func newTestOrchestrator() (*Orchestrator, *store.Store) {
	s := store.New(analyzer.NewRelationshipInferer(0))
	return New(s, nil), s
}

func fieldList(names ...string) []adapter.RawField {
	var out []adapter.RawField
	for _, n := range names {
		out = append(out, adapter.RawField{Name: n, TypeHint: "TEXT"})
	}
	return out
}

func TestCrawlSucceeded(t *testing.T) {
	orch, s := newTestOrchestrator()
	a := &fakeAdapter{
		id:         "sample.db",
		containers: []string{"customers", "orders"},
		fields: map[string][]adapter.RawField{
			"customers": fieldList("id", "name"),
			"orders":    fieldList("id", "total"),
		},
	}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 4, out.RecordCount)
	assert.Empty(t, out.ContainerErrors)
	assert.Equal(t, 4, s.Statistics().TotalRecords)
}

func TestCrawlPartialOnContainerFailure(t *testing.T) {
	orch, s := newTestOrchestrator()
	a := &fakeAdapter{
		id:         "sample.db",
		containers: []string{"good", "bad", "also_good"},
		fields: map[string][]adapter.RawField{
			"good":      fieldList("id"),
			"also_good": fieldList("id"),
		},
		errs: map[string]error{
			"bad": fmt.Errorf("%w: broken table", adapter.ErrMalformed),
		},
	}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusPartial, out.Status, "单个容器失败不中止整次爬取")
	assert.Contains(t, out.ContainerErrors, "bad")
	assert.Equal(t, 2, out.RecordCount)
	assert.Equal(t, 2, s.Statistics().TotalRecords)
}

func TestCrawlFailedWhenAllContainersFail(t *testing.T) {
	orch, s := newTestOrchestrator()
	s.Ingest("sample.db", []catalog.CanonicalRecord{{
		SourceType: catalog.SourceDatabase, SourceID: "sample.db",
		ContainerName: "old", FieldName: "kept",
	}})

	a := &fakeAdapter{
		id:         "sample.db",
		containers: []string{"t1", "t2"},
		errs: map[string]error{
			"t1": adapter.ErrUnreachable,
			"t2": adapter.ErrUnreachable,
		},
	}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 1, s.Statistics().TotalRecords, "爬取整体失败时保留上一代数据")
}

func TestCrawlFailedOnListError(t *testing.T) {
	orch, _ := newTestOrchestrator()
	a := &fakeAdapter{id: "down.db", listErr: adapter.ErrUnreachable}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
}

func TestCrawlZeroFields(t *testing.T) {
	orch, _ := newTestOrchestrator()
	a := &fakeAdapter{
		id:         "empty.db",
		containers: []string{"empty_table"},
		fields:     map[string][]adapter.RawField{"empty_table": nil},
	}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status, "空结果不是错误")
	assert.Equal(t, 0, out.RecordCount)
}

func TestCrawlZeroContainers(t *testing.T) {
	orch, _ := newTestOrchestrator()
	a := &fakeAdapter{id: "bare.db"}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, 0, out.RecordCount)
}

func TestCrawlCountsRejectedFields(t *testing.T) {
	orch, s := newTestOrchestrator()
	a := &fakeAdapter{
		id:         "sample.db",
		containers: []string{"t"},
		fields: map[string][]adapter.RawField{
			"t": {{Name: "ok", TypeHint: "TEXT"}, {Name: ""}, {Name: "  "}},
		},
	}

	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status, "字段级拒绝不算爬取失败")
	assert.Equal(t, 2, out.RejectedFields)
	assert.Equal(t, 1, out.RecordCount)
	assert.Equal(t, 1, s.Statistics().TotalRecords)
}

func TestCrawlConflictSameSource(t *testing.T) {
	orch, _ := newTestOrchestrator()

	started := make(chan struct{})
	release := make(chan struct{})
	blocking := &fakeAdapter{
		id:         "busy.db",
		containers: []string{"t"},
		fields:     map[string][]adapter.RawField{"t": fieldList("id")},
		onExtract: func(string) {
			close(started)
			<-release
		},
	}

	done := make(chan Outcome)
	go func() {
		out, _ := orch.Crawl(context.Background(), catalog.SourceDatabase, blocking, nil)
		done <- out
	}()
	<-started

	// 同一 source_id 立即拒绝，不排队
	second := &fakeAdapter{id: "busy.db", containers: []string{"t"}}
	out, err := orch.Crawl(context.Background(), catalog.SourceDatabase, second, nil)
	assert.ErrorIs(t, err, ErrCrawlInProgress)
	assert.Equal(t, StatusFailed, out.Status)

	close(release)
	first := <-done
	assert.Equal(t, StatusSucceeded, first.Status)

	// 第一个结束后可以重新爬取
	out, err = orch.Crawl(context.Background(), catalog.SourceDatabase, second, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
}

func TestCrawlCancellation(t *testing.T) {
	orch, s := newTestOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())

	a := &fakeAdapter{
		id:         "slow.db",
		containers: []string{"first", "second", "third"},
		fields: map[string][]adapter.RawField{
			"first":  fieldList("id"),
			"second": fieldList("id"),
			"third":  fieldList("id"),
		},
		onExtract: func(container string) {
			if container == "first" {
				cancel() // 第一个容器抽取期间请求取消
			}
		},
	}

	out, err := orch.Crawl(ctx, catalog.SourceDatabase, a, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, 1, out.RecordCount, "已完成的容器保留，未开始的不再抽取")
	assert.Equal(t, 1, s.Statistics().TotalRecords)
}

func TestCrawlProgressEvents(t *testing.T) {
	orch, _ := newTestOrchestrator()
	a := &fakeAdapter{
		id:         "sample.db",
		containers: []string{"ok", "bad"},
		fields:     map[string][]adapter.RawField{"ok": fieldList("id")},
		errs:       map[string]error{"bad": adapter.ErrMalformed},
	}

	progress := make(chan Progress, 16)
	_, err := orch.Crawl(context.Background(), catalog.SourceDatabase, a, progress)
	require.NoError(t, err)
	close(progress)

	stages := make(map[string]int)
	for p := range progress {
		stages[p.Stage]++
	}
	assert.Equal(t, 2, stages[StageContainerStarted])
	assert.Equal(t, 1, stages[StageContainerFinished])
	assert.Equal(t, 1, stages[StageContainerFailed])
}

func TestCrawlConcurrentDistinctSources(t *testing.T) {
	orch, s := newTestOrchestrator()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := &fakeAdapter{
				id:         fmt.Sprintf("db-%d", i),
				containers: []string{"t"},
				fields:     map[string][]adapter.RawField{"t": fieldList("id", "name", "value")},
			}
			outcomes[i], _ = orch.Crawl(context.Background(), catalog.SourceDatabase, a, nil)
		}(i)
	}
	wg.Wait()

	for i, out := range outcomes {
		assert.Equal(t, StatusSucceeded, out.Status, "source %d", i)
		assert.Equal(t, 3, out.RecordCount)
	}
	assert.Equal(t, 12, s.Statistics().TotalRecords)
}
