package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"metadata-crawler/internal/analyzer"
	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/store"
)

func sampleSnapshot() store.Snapshot {
	fk := catalog.CanonicalRecord{
		SourceType: catalog.SourceDatabase, SourceID: "sample.db",
		ContainerName: "orders", FieldName: "customer_id",
		DeclaredType: "INTEGER", IsForeignKey: true,
		FKTargetContainer: "customers", FKTargetField: "customer_id",
	}
	s := store.New(analyzer.NewRelationshipInferer(0))
	s.Ingest("sample.db", []catalog.CanonicalRecord{
		{
			SourceType: catalog.SourceDatabase, SourceID: "sample.db",
			ContainerName: "customers", FieldName: "customer_id",
			DeclaredType: "INTEGER", IsPrimaryKey: true,
		},
		{
			SourceType: catalog.SourceDatabase, SourceID: "sample.db",
			ContainerName: "customers", FieldName: "name",
			DeclaredType: "TEXT", Nullable: true, SampleValue: "Alice",
		},
		fk,
	})
	return s.Export()
}

func TestMarkdownRender(t *testing.T) {
	out := NewMarkdownRenderer().Render(sampleSnapshot())

	assert.Contains(t, out, "# 数据字典")
	assert.Contains(t, out, "- 记录总数: 3")
	assert.Contains(t, out, "- 关系总数: 1")
	assert.Contains(t, out, "### customers")
	assert.Contains(t, out, "### orders")
	assert.Contains(t, out, "| name | TEXT | 是 |  |  | Alice |")
	assert.Contains(t, out, "`orders.customer_id` → `customers.customer_id`")
	assert.Contains(t, out, "置信度: 1.00")
}

func TestMarkdownRenderEmpty(t *testing.T) {
	out := NewMarkdownRenderer().Render(store.Snapshot{})

	assert.Contains(t, out, "- 记录总数: 0")
	assert.NotContains(t, out, "###")
}

func TestMermaidRender(t *testing.T) {
	out := NewMermaidRenderer().Render(sampleSnapshot())

	assert.True(t, strings.HasPrefix(out, "erDiagram\n"))
	assert.Contains(t, out, "customers {")
	assert.Contains(t, out, "orders {")
	assert.Contains(t, out, "INTEGER customer_id PK")
	assert.Contains(t, out, "INTEGER customer_id FK")
	assert.Contains(t, out, `customers ||--o{ orders : "1.00"`)
}

func TestMermaidEntityID(t *testing.T) {
	assert.Equal(t, "employees_csv", entityID("employees.csv"))
	assert.Equal(t, "unknown", entityID(""))
}
