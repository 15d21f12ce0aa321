package renderer

import (
	"fmt"
	"strings"

	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/store"
)

// MarkdownRenderer Markdown 数据字典渲染器
type MarkdownRenderer struct{}

// NewMarkdownRenderer 创建渲染器
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render 把导出快照渲染为 Markdown 数据字典
func (m *MarkdownRenderer) Render(snap store.Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# 数据字典\n\n")
	sb.WriteString("## 概览\n\n")
	sb.WriteString(fmt.Sprintf("- 记录总数: %d\n", snap.Statistics.TotalRecords))
	sb.WriteString(fmt.Sprintf("- 关系总数: %d\n", snap.Statistics.TotalRelationships))
	for _, st := range []catalog.SourceType{catalog.SourceDatabase, catalog.SourceAPI, catalog.SourceFile} {
		if n, ok := snap.Statistics.BySourceType[st]; ok {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", st, n))
		}
	}
	sb.WriteString("\n## 容器\n\n")

	// 记录已按标识排序，顺序扫描即按容器分组
	var current catalog.RecordKey
	first := true
	for _, rec := range snap.Records {
		if first || rec.SourceID != current.SourceID || rec.ContainerName != current.ContainerName {
			if !first {
				sb.WriteString("\n")
				m.renderRelations(&sb, snap, current.ContainerName)
			}
			first = false
			current = rec.Key()

			sb.WriteString(fmt.Sprintf("### %s\n\n", rec.ContainerName))
			sb.WriteString(fmt.Sprintf("来源: `%s` (%s)\n\n", rec.SourceID, rec.SourceType))
			sb.WriteString("| 字段 | 类型 | 可空 | 主键 | 外键 | 示例 |\n")
			sb.WriteString("|------|------|------|------|------|------|\n")
		}

		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			rec.FieldName,
			rec.DeclaredType,
			yesNo(rec.Nullable),
			mark(rec.IsPrimaryKey),
			mark(rec.IsForeignKey),
			rec.SampleValue,
		))
	}
	if !first {
		sb.WriteString("\n")
		m.renderRelations(&sb, snap, current.ContainerName)
	}

	return sb.String()
}

// renderRelations 渲染某容器相关的关系
func (m *MarkdownRenderer) renderRelations(sb *strings.Builder, snap store.Snapshot, container string) {
	var relations []catalog.RelationshipEdge
	for _, e := range snap.Relationships {
		if e.From.ContainerName == container || e.To.ContainerName == container {
			relations = append(relations, e)
		}
	}
	if len(relations) == 0 {
		return
	}

	sb.WriteString("#### 关系\n\n")
	for _, rel := range relations {
		kind := "外键"
		if rel.Kind == catalog.EdgeNameMatch {
			kind = "命名推断"
		}
		sb.WriteString(fmt.Sprintf("- **%s** `%s.%s` → `%s.%s` (置信度: %.2f)\n",
			kind,
			rel.From.ContainerName, rel.From.FieldName,
			rel.To.ContainerName, rel.To.FieldName,
			rel.Confidence))
	}
	sb.WriteString("\n")
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func mark(b bool) string {
	if b {
		return "✓"
	}
	return ""
}
