package analyzer

import (
	"reflect"
	"testing"

	"metadata-crawler/internal/catalog"
)

func dbRecord(sourceID, container, field string, pk bool) catalog.CanonicalRecord {
	return catalog.CanonicalRecord{
		SourceType:    catalog.SourceDatabase,
		SourceID:      sourceID,
		ContainerName: container,
		FieldName:     field,
		DeclaredType:  "INTEGER",
		IsPrimaryKey:  pk,
	}
}

func fileRecord(sourceID, container, field string, pk bool) catalog.CanonicalRecord {
	return catalog.CanonicalRecord{
		SourceType:    catalog.SourceFile,
		SourceID:      sourceID,
		ContainerName: container,
		FieldName:     field,
		DeclaredType:  "integer",
		IsPrimaryKey:  pk,
	}
}

func TestInferExplicitForeignKey(t *testing.T) {
	fk := dbRecord("sample.db", "orders", "customer_id", false)
	fk.IsForeignKey = true
	fk.FKTargetContainer = "customers"
	fk.FKTargetField = "customer_id"

	records := []catalog.CanonicalRecord{
		dbRecord("sample.db", "customers", "customer_id", true),
		fk,
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	e := edges[0]
	if e.Kind != catalog.EdgeForeignKey {
		t.Errorf("expected foreign_key, got %s", e.Kind)
	}
	if e.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", e.Confidence)
	}
	if e.From.ContainerName != "orders" || e.To.ContainerName != "customers" {
		t.Errorf("unexpected edge direction: %s -> %s", e.From, e.To)
	}
}

func TestInferExplicitTargetMissing(t *testing.T) {
	fk := dbRecord("sample.db", "orders", "customer_id", false)
	fk.IsForeignKey = true
	fk.FKTargetContainer = "customers"
	fk.FKTargetField = "customer_id"

	// 目标尚未爬取：边静默丢弃，不报错
	edges := NewRelationshipInferer(0).Infer([]catalog.CanonicalRecord{fk})
	if len(edges) != 0 {
		t.Fatalf("expected no edges, got %d", len(edges))
	}
}

func TestInferHeuristicContainerMatch(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "employees", "department_id", false),
		fileRecord("files", "departments", "id", true),
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	e := edges[0]
	if e.Kind != catalog.EdgeNameMatch {
		t.Errorf("expected heuristic_name_match, got %s", e.Kind)
	}
	if e.Confidence != 1.0 {
		t.Errorf("prefix 'department' should match container 'departments': confidence %f", e.Confidence)
	}
}

func TestInferHeuristicSameNameOnly(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "employees", "department_id", false),
		fileRecord("files", "lookup", "department_id", true),
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %f", edges[0].Confidence)
	}
}

func TestInferThreshold(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "employees", "department_id", false),
		fileRecord("files", "lookup", "department_id", true),
	}

	// 0.5 的候选低于阈值 0.6，丢弃
	edges := NewRelationshipInferer(0.6).Infer(records)
	if len(edges) != 0 {
		t.Fatalf("expected no edges above threshold 0.6, got %d", len(edges))
	}
}

func TestInferXidSuffix(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "employees", "departmentid", false),
		fileRecord("files", "departments", "id", true),
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 || edges[0].Confidence != 1.0 {
		t.Fatalf("expected one 1.0 edge for Xid form, got %v", edges)
	}
}

func TestInferBareIDNoSelfProposal(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "departments", "id", true),
		fileRecord("files", "regions", "id", true),
	}

	// 字段本身叫 id，前缀为空，不参与启发式
	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 0 {
		t.Fatalf("expected no edges, got %d", len(edges))
	}
}

func TestInferTieBreakEditDistance(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "events", "user_id", false),
		fileRecord("files", "user", "id", true),
		fileRecord("files", "users", "id", true),
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	// user 和 users 都是 1.0，编辑距离更短的 user 胜出
	if edges[0].To.ContainerName != "user" {
		t.Errorf("expected target container 'user', got %q", edges[0].To.ContainerName)
	}
}

func TestInferTieBreakLexicographic(t *testing.T) {
	records := []catalog.CanonicalRecord{
		fileRecord("files", "events", "user_id", false),
		fileRecord("files", "refa", "user_id", true),
		fileRecord("files", "refb", "user_id", true),
	}

	edges := NewRelationshipInferer(0).Infer(records)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].To.ContainerName != "refa" {
		t.Errorf("expected lexicographic winner 'refa', got %q", edges[0].To.ContainerName)
	}
}

func TestInferDeterministic(t *testing.T) {
	fk := dbRecord("sample.db", "orders", "customer_id", false)
	fk.IsForeignKey = true
	fk.FKTargetContainer = "customers"
	fk.FKTargetField = "customer_id"

	records := []catalog.CanonicalRecord{
		dbRecord("sample.db", "customers", "customer_id", true),
		fk,
		dbRecord("sample.db", "orders", "product_id", false),
		dbRecord("sample.db", "products", "id", true),
		fileRecord("files", "employees", "department_id", false),
		fileRecord("files", "departments", "id", true),
	}

	inferer := NewRelationshipInferer(0)
	first := inferer.Infer(records)
	second := inferer.Infer(records)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("inference not deterministic:\n%v\n%v", first, second)
	}
	if len(first) == 0 {
		t.Fatal("expected edges")
	}
}

func TestStripIDSuffix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		ok     bool
	}{
		{"customer_id", "customer", true},
		{"CustomerID", "customer", true},
		{"departmentid", "department", true},
		{"id", "", false},
		{"_id", "", false},
		{"name", "", false},
	}

	for _, tt := range tests {
		prefix, ok := stripIDSuffix(tt.name)
		if ok != tt.ok || prefix != tt.prefix {
			t.Errorf("stripIDSuffix(%q) = (%q, %v), want (%q, %v)", tt.name, prefix, ok, tt.prefix, tt.ok)
		}
	}
}

func TestContainerMatches(t *testing.T) {
	tests := []struct {
		container string
		prefix    string
		expected  bool
	}{
		{"departments", "department", true},
		{"department", "department", true},
		{"Departments", "department", true},
		{"departments.csv", "department", true},
		{"branches", "branch", true},
		{"lookup", "department", false},
	}

	for _, tt := range tests {
		if got := containerMatches(tt.container, tt.prefix); got != tt.expected {
			t.Errorf("containerMatches(%q, %q) = %v, want %v", tt.container, tt.prefix, got, tt.expected)
		}
	}
}
