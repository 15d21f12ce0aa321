package graph

import (
	"sort"
	"sync"

	"metadata-crawler/internal/catalog"
)

// edgeKey 同一有向对加类型只保留一条边
type edgeKey struct {
	from catalog.RecordKey
	to   catalog.RecordKey
	kind catalog.EdgeKind
}

// LineageGraph 血缘图
// 持有全部规范记录和关系边，支持插入、查找和上下游遍历。
// 边的方向：引用方字段 -> 被引用字段，上游即数据来源方向。
type LineageGraph struct {
	mu      sync.RWMutex
	records map[catalog.RecordKey]catalog.CanonicalRecord
	edges   map[edgeKey]catalog.RelationshipEdge
	out     map[catalog.RecordKey]map[catalog.RecordKey]struct{}
	in      map[catalog.RecordKey]map[catalog.RecordKey]struct{}
}

// NewLineageGraph 创建空图
func NewLineageGraph() *LineageGraph {
	g := &LineageGraph{}
	g.reset()
	return g
}

func (g *LineageGraph) reset() {
	g.records = make(map[catalog.RecordKey]catalog.CanonicalRecord)
	g.edges = make(map[edgeKey]catalog.RelationshipEdge)
	g.out = make(map[catalog.RecordKey]map[catalog.RecordKey]struct{})
	g.in = make(map[catalog.RecordKey]map[catalog.RecordKey]struct{})
}

// AddRecord 插入记录，同标识覆盖旧记录
func (g *LineageGraph) AddRecord(r catalog.CanonicalRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[r.Key()] = r
}

// Record 按标识查找
func (g *LineageGraph) Record(key catalog.RecordKey) (catalog.CanonicalRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.records[key]
	return r, ok
}

// Records 全部记录，按标识排序保证确定性
func (g *LineageGraph) Records() []catalog.CanonicalRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]catalog.CanonicalRecord, 0, len(g.records))
	for _, r := range g.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return keyLess(out[i].Key(), out[j].Key())
	})
	return out
}

// RemoveSource 删除某 source_id 的全部记录和关联的边，返回删除的记录数
// 先删边再删记录，图里不会残留悬空边。
func (g *LineageGraph) RemoveSource(sourceID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := make(map[catalog.RecordKey]struct{})
	for key := range g.records {
		if key.SourceID == sourceID {
			removed[key] = struct{}{}
		}
	}
	if len(removed) == 0 {
		return 0
	}

	for ek := range g.edges {
		if _, gone := removed[ek.from]; gone {
			delete(g.edges, ek)
			continue
		}
		if _, gone := removed[ek.to]; gone {
			delete(g.edges, ek)
		}
	}
	for key := range removed {
		delete(g.records, key)
	}
	g.rebuildAdjacency()
	return len(removed)
}

// SetEdges 整体替换边集
// 丢弃端点缺失的边和自环，同一 (from,to,kind) 保留置信度最高的一条。
func (g *LineageGraph) SetEdges(edges []catalog.RelationshipEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = make(map[edgeKey]catalog.RelationshipEdge)
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, ok := g.records[e.From]; !ok {
			continue
		}
		if _, ok := g.records[e.To]; !ok {
			continue
		}
		ek := edgeKey{from: e.From, to: e.To, kind: e.Kind}
		if prev, ok := g.edges[ek]; ok && prev.Confidence >= e.Confidence {
			continue
		}
		g.edges[ek] = e
	}
	g.rebuildAdjacency()
}

// Edges 全部边，排序后返回
func (g *LineageGraph) Edges() []catalog.RelationshipEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedEdges(nil)
}

// EdgesFor 任一端点落在指定容器的边
func (g *LineageGraph) EdgesFor(container string) []catalog.RelationshipEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedEdges(func(e catalog.RelationshipEdge) bool {
		return e.From.ContainerName == container || e.To.ContainerName == container
	})
}

// Upstream 沿边方向可达的记录（数据来源），maxDepth <= 0 表示不限深度
func (g *LineageGraph) Upstream(key catalog.RecordKey, maxDepth int) []catalog.CanonicalRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walk(key, maxDepth, g.out)
}

// Downstream 逆边方向可达的记录（依赖方）
func (g *LineageGraph) Downstream(key catalog.RecordKey, maxDepth int) []catalog.CanonicalRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.walk(key, maxDepth, g.in)
}

// walk 宽度优先遍历，visited 集合保证有环也不会死循环
func (g *LineageGraph) walk(start catalog.RecordKey, maxDepth int, adj map[catalog.RecordKey]map[catalog.RecordKey]struct{}) []catalog.CanonicalRecord {
	visited := map[catalog.RecordKey]struct{}{start: {}}
	frontier := []catalog.RecordKey{start}
	var reached []catalog.CanonicalRecord

	for depth := 0; len(frontier) > 0; depth++ {
		if maxDepth > 0 && depth >= maxDepth {
			break
		}
		var next []catalog.RecordKey
		for _, key := range frontier {
			for neighbor := range adj[key] {
				if _, seen := visited[neighbor]; seen {
					continue
				}
				visited[neighbor] = struct{}{}
				if r, ok := g.records[neighbor]; ok {
					reached = append(reached, r)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	sort.Slice(reached, func(i, j int) bool {
		return keyLess(reached[i].Key(), reached[j].Key())
	})
	return reached
}

// Clear 清空图
func (g *LineageGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

// NumRecords 记录总数
func (g *LineageGraph) NumRecords() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// NumEdges 边总数
func (g *LineageGraph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// sortedEdges 按 (from, to, kind) 排序，filter 为 nil 时返回全部
func (g *LineageGraph) sortedEdges(filter func(catalog.RelationshipEdge) bool) []catalog.RelationshipEdge {
	var out []catalog.RelationshipEdge
	for _, e := range g.edges {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return keyLess(out[i].From, out[j].From)
		}
		if out[i].To != out[j].To {
			return keyLess(out[i].To, out[j].To)
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (g *LineageGraph) rebuildAdjacency() {
	g.out = make(map[catalog.RecordKey]map[catalog.RecordKey]struct{})
	g.in = make(map[catalog.RecordKey]map[catalog.RecordKey]struct{})
	for ek := range g.edges {
		if g.out[ek.from] == nil {
			g.out[ek.from] = make(map[catalog.RecordKey]struct{})
		}
		g.out[ek.from][ek.to] = struct{}{}
		if g.in[ek.to] == nil {
			g.in[ek.to] = make(map[catalog.RecordKey]struct{})
		}
		g.in[ek.to][ek.from] = struct{}{}
	}
}

func keyLess(a, b catalog.RecordKey) bool {
	if a.SourceType != b.SourceType {
		return a.SourceType < b.SourceType
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	if a.ContainerName != b.ContainerName {
		return a.ContainerName < b.ContainerName
	}
	return a.FieldName < b.FieldName
}
