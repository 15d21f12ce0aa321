package store

import (
	"strings"
	"sync"

	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/graph"
)

// Inferer 关系推断能力，由 analyzer 实现
type Inferer interface {
	Infer([]catalog.CanonicalRecord) []catalog.RelationshipEdge
}

// Store 元数据目录
// 进程生命周期内的唯一事实来源：持有血缘图和派生索引（按源类型计数），
// 字典生成、统计和检索都从这里读。
// 写路径单写锁串行，读操作总是看到某个一致的快照。
type Store struct {
	mu      sync.RWMutex
	graph   *graph.LineageGraph
	inferer Inferer
	counts  map[catalog.SourceType]int
}

// New 创建目录存储
func New(inferer Inferer) *Store {
	return &Store{
		graph:   graph.NewLineageGraph(),
		inferer: inferer,
		counts:  make(map[catalog.SourceType]int),
	}
}

// IngestResult 单次摄入结果
type IngestResult struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
}

// Ingest 原子替换某 source_id 的全部记录
// 持写锁完成删旧、插新、重算关系边三步，读方不会看到中间状态。
// 同一 source_id 相同输入重复摄入后目录状态不变。
func (s *Store) Ingest(sourceID string, records []catalog.CanonicalRecord) IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.graph.RemoveSource(sourceID)

	added := 0
	seen := make(map[catalog.RecordKey]struct{}, len(records))
	for _, r := range records {
		// 只接受属于本 source_id 的记录
		if r.SourceID != sourceID {
			continue
		}
		k := r.Key()
		if _, dup := seen[k]; !dup {
			seen[k] = struct{}{}
			added++
		}
		s.graph.AddRecord(r)
	}

	// 摄入后整体重算关系边（全量重算与增量范围语义一致）
	s.graph.SetEdges(s.inferer.Infer(s.graph.Records()))
	s.recount()
	return IngestResult{Added: added, Replaced: replaced}
}

// Filter 检索条件，零值字段不参与过滤
type Filter struct {
	SourceType catalog.SourceType `json:"source_type,omitempty"`
	Container  string             `json:"container,omitempty"` // 子串匹配，大小写不敏感
	Field      string             `json:"field,omitempty"`     // 子串匹配，大小写不敏感
}

// Query 过滤检索，每次调用基于当时快照返回新切片
func (s *Store) Query(f Filter) []catalog.CanonicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	containerSub := strings.ToLower(f.Container)
	fieldSub := strings.ToLower(f.Field)

	var out []catalog.CanonicalRecord
	for _, r := range s.graph.Records() {
		if f.SourceType != "" && r.SourceType != f.SourceType {
			continue
		}
		if containerSub != "" && !strings.Contains(strings.ToLower(r.ContainerName), containerSub) {
			continue
		}
		if fieldSub != "" && !strings.Contains(strings.ToLower(r.FieldName), fieldSub) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Statistics 目录统计
type Statistics struct {
	TotalRecords       int                        `json:"total_records"`
	TotalRelationships int                        `json:"total_relationships"`
	BySourceType       map[catalog.SourceType]int `json:"by_source_type"`
}

// Statistics 当前统计快照
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statisticsLocked()
}

func (s *Store) statisticsLocked() Statistics {
	by := make(map[catalog.SourceType]int, len(s.counts))
	for k, v := range s.counts {
		by[k] = v
	}
	return Statistics{
		TotalRecords:       s.graph.NumRecords(),
		TotalRelationships: s.graph.NumEdges(),
		BySourceType:       by,
	}
}

// Upstream 记录的上游集合
func (s *Store) Upstream(key catalog.RecordKey, maxDepth int) []catalog.CanonicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Upstream(key, maxDepth)
}

// Downstream 记录的下游集合
func (s *Store) Downstream(key catalog.RecordKey, maxDepth int) []catalog.CanonicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Downstream(key, maxDepth)
}

// EdgesFor 某容器相关的关系边
func (s *Store) EdgesFor(container string) []catalog.RelationshipEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.EdgesFor(container)
}

// Record 按标识查找
func (s *Store) Record(key catalog.RecordKey) (catalog.CanonicalRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Record(key)
}

// Clear 清空全部记录和边
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Clear()
	s.counts = make(map[catalog.SourceType]int)
}

// Snapshot 只读导出快照：全部记录、全部关系边和统计
// 报表生成（字典/血缘图/导出文件）只依赖这一份数据。
type Snapshot struct {
	Records       []catalog.CanonicalRecord  `json:"records"`
	Relationships []catalog.RelationshipEdge `json:"relationships"`
	Statistics    Statistics                 `json:"statistics"`
}

// Export 取一致的导出快照
func (s *Store) Export() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Records:       s.graph.Records(),
		Relationships: s.graph.Edges(),
		Statistics:    s.statisticsLocked(),
	}
}

func (s *Store) recount() {
	counts := make(map[catalog.SourceType]int)
	for _, r := range s.graph.Records() {
		counts[r.SourceType]++
	}
	s.counts = counts
}
