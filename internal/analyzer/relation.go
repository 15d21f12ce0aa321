package analyzer

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"metadata-crawler/internal/catalog"
)

// DefaultThreshold 启发式边的默认置信度下限
const DefaultThreshold = 0.4

// RelationshipInferer 关系推断器
// 基于显式外键约束和命名约定推断记录间的有向关系。
// 命名启发式天然是近似的：巧合同名会产生误报，非常规命名会漏报。
type RelationshipInferer struct {
	threshold float64
}

// NewRelationshipInferer 创建推断器，threshold <= 0 时使用默认值
func NewRelationshipInferer(threshold float64) *RelationshipInferer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &RelationshipInferer{threshold: threshold}
}

// Infer 在当前全量记录集上推断关系边
// 1. 显式外键：目标记录存在则生成 foreign_key 边（置信度 1.0），不存在静默丢弃
// 2. 命名启发式：X_id/Xid 字段对照其他容器的主键，容器名对上前缀记 1.0，仅同名记 0.5
// 3. 低于阈值的候选丢弃；平局先比容器名与前缀的编辑距离，再按容器名字典序
// 输出顺序确定，同一输入两次推断结果完全一致。
func (r *RelationshipInferer) Infer(records []catalog.CanonicalRecord) []catalog.RelationshipEdge {
	index := make(map[catalog.RecordKey]struct{}, len(records))
	var pks []catalog.CanonicalRecord
	for _, rec := range records {
		index[rec.Key()] = struct{}{}
		if rec.IsPrimaryKey {
			pks = append(pks, rec)
		}
	}

	var edges []catalog.RelationshipEdge
	explicit := make(map[catalog.RecordKey]bool)

	// 显式外键边
	for _, rec := range records {
		if !rec.IsForeignKey || rec.FKTargetContainer == "" || rec.FKTargetField == "" {
			continue
		}
		target := catalog.RecordKey{
			SourceType:    rec.SourceType,
			SourceID:      rec.SourceID,
			ContainerName: rec.FKTargetContainer,
			FieldName:     rec.FKTargetField,
		}
		if target == rec.Key() {
			continue
		}
		// 目标尚未爬取时丢弃，不算错误
		if _, ok := index[target]; !ok {
			continue
		}
		edges = append(edges, catalog.RelationshipEdge{
			From:       rec.Key(),
			To:         target,
			Kind:       catalog.EdgeForeignKey,
			Confidence: 1.0,
		})
		explicit[rec.Key()] = true
	}

	// 命名启发式边，仅作用于没有显式边的字段
	for _, rec := range records {
		if explicit[rec.Key()] {
			continue
		}
		prefix, ok := stripIDSuffix(rec.FieldName)
		if !ok {
			continue
		}

		var best *catalog.RelationshipEdge
		var bestDist int
		for i := range pks {
			cand := &pks[i]
			if cand.ContainerName == rec.ContainerName {
				continue
			}
			candName := strings.ToLower(cand.FieldName)
			if candName != "id" && !strings.EqualFold(cand.FieldName, rec.FieldName) {
				continue
			}

			confidence := 0.5
			if containerMatches(cand.ContainerName, prefix) {
				confidence = 1.0
			}
			if confidence < r.threshold {
				continue
			}

			dist := levenshtein.DistanceForStrings(
				[]rune(normalizeContainer(cand.ContainerName)), []rune(prefix),
				levenshtein.DefaultOptions)

			e := catalog.RelationshipEdge{
				From:       rec.Key(),
				To:         cand.Key(),
				Kind:       catalog.EdgeNameMatch,
				Confidence: confidence,
			}
			if best == nil || betterCandidate(e, dist, *best, bestDist) {
				best, bestDist = &e, dist
			}
		}
		if best != nil && best.From != best.To {
			edges = append(edges, *best)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return keyLess(edges[i].From, edges[j].From)
		}
		if edges[i].To != edges[j].To {
			return keyLess(edges[i].To, edges[j].To)
		}
		return edges[i].Kind < edges[j].Kind
	})
	return edges
}

// betterCandidate 候选优先级：置信度高 > 编辑距离短 > 容器名字典序 > 完整标识序
func betterCandidate(e catalog.RelationshipEdge, dist int, cur catalog.RelationshipEdge, curDist int) bool {
	if e.Confidence != cur.Confidence {
		return e.Confidence > cur.Confidence
	}
	if dist != curDist {
		return dist < curDist
	}
	if e.To.ContainerName != cur.To.ContainerName {
		return e.To.ContainerName < cur.To.ContainerName
	}
	return keyLess(e.To, cur.To)
}

// stripIDSuffix 剥离 X_id / Xid 后缀，返回小写前缀
// 字段本身叫 id（前缀为空）不参与启发式。
func stripIDSuffix(name string) (string, bool) {
	lower := strings.ToLower(name)
	var prefix string
	switch {
	case strings.HasSuffix(lower, "_id"):
		prefix = strings.TrimSuffix(lower, "_id")
	case strings.HasSuffix(lower, "id"):
		prefix = strings.TrimSuffix(lower, "id")
	default:
		return "", false
	}
	prefix = strings.TrimSuffix(prefix, "_")
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

// containerMatches 容器名与前缀是否对应（大小写和单复数不敏感）
func containerMatches(container, prefix string) bool {
	for _, c := range nameVariants(normalizeContainer(container)) {
		for _, p := range nameVariants(prefix) {
			if c == p {
				return true
			}
		}
	}
	return false
}

// nameVariants 名称本身加上去掉复数后缀的变体
func nameVariants(s string) []string {
	variants := []string{s}
	if strings.HasSuffix(s, "es") && len(s) > 2 {
		variants = append(variants, s[:len(s)-2])
	}
	if strings.HasSuffix(s, "s") && len(s) > 1 {
		variants = append(variants, s[:len(s)-1])
	}
	return variants
}

// normalizeContainer 小写并去掉常见文件扩展名
func normalizeContainer(container string) string {
	c := strings.ToLower(container)
	for _, ext := range []string{".csv", ".json", ".xlsx", ".xls"} {
		if strings.HasSuffix(c, ext) {
			return strings.TrimSuffix(c, ext)
		}
	}
	return c
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
