package renderer

import (
	"fmt"
	"sort"
	"strings"

	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/store"
)

// MermaidRenderer Mermaid 血缘图渲染器
type MermaidRenderer struct{}

// NewMermaidRenderer 创建渲染器
func NewMermaidRenderer() *MermaidRenderer {
	return &MermaidRenderer{}
}

// Render 把导出快照渲染为 Mermaid ER 图
// 容器作为实体，关系边聚合到容器级别；推断关系用虚线。
func (m *MermaidRenderer) Render(snap store.Snapshot) string {
	var sb strings.Builder

	sb.WriteString("erDiagram\n")

	// 实体定义
	containers := make(map[string][]catalog.CanonicalRecord)
	var order []string
	for _, rec := range snap.Records {
		name := entityID(rec.ContainerName)
		if _, ok := containers[name]; !ok {
			order = append(order, name)
		}
		containers[name] = append(containers[name], rec)
	}
	sort.Strings(order)

	for _, name := range order {
		sb.WriteString(fmt.Sprintf("    %s {\n", name))
		for _, rec := range containers[name] {
			flags := ""
			if rec.IsPrimaryKey {
				flags = " PK"
			} else if rec.IsForeignKey {
				flags = " FK"
			}
			sb.WriteString(fmt.Sprintf("        %s %s%s\n",
				entityID(rec.DeclaredType), entityID(rec.FieldName), flags))
		}
		sb.WriteString("    }\n")
	}

	sb.WriteString("\n")

	// 关系，去重到容器对
	seen := make(map[string]bool)
	for _, e := range snap.Relationships {
		from := entityID(e.From.ContainerName)
		to := entityID(e.To.ContainerName)

		relType := "||--o{"
		if e.Kind == catalog.EdgeNameMatch {
			relType = "||..o{" // 虚线表示推断关系
		}

		line := fmt.Sprintf("    %s %s %s : \"%.2f\"\n", to, relType, from, e.Confidence)
		if !seen[line] {
			seen[line] = true
			sb.WriteString(line)
		}
	}

	return sb.String()
}

// entityID Mermaid 标识符只保留字母数字和下划线
func entityID(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
