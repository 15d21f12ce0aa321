package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"metadata-crawler/internal/adapter"
)

func TestNormalizeDatabaseFields(t *testing.T) {
	nullable := false
	fields := []adapter.RawField{
		{Name: "customer_id", TypeHint: "INTEGER", Nullable: &nullable, IsPrimaryKey: true},
		{
			Name: "region_id", TypeHint: "INTEGER", IsForeignKey: true,
			FKTarget: &adapter.FieldRef{Container: "regions", Field: "id"},
		},
	}

	records, rejected := Normalize(SourceDatabase, "crm.db", "customers", fields)

	assert.Equal(t, 0, rejected)
	assert.Len(t, records, 2)

	assert.Equal(t, "INTEGER", records[0].DeclaredType) // 数据库类型名原样保留
	assert.False(t, records[0].Nullable)
	assert.True(t, records[0].IsPrimaryKey)
	assert.Equal(t, RecordKey{SourceDatabase, "crm.db", "customers", "customer_id"}, records[0].Key())

	assert.True(t, records[1].IsForeignKey)
	assert.Equal(t, "regions", records[1].FKTargetContainer)
	assert.Equal(t, "id", records[1].FKTargetField)
	assert.True(t, records[1].Nullable, "未声明可空性时默认可空")
}

func TestNormalizeRejectsEmptyNames(t *testing.T) {
	fields := []adapter.RawField{
		{Name: "valid"},
		{Name: ""},
		{Name: "   "},
		{Name: "also_valid"},
	}

	records, rejected := Normalize(SourceFile, "files", "data", fields)

	assert.Equal(t, 2, rejected)
	assert.Len(t, records, 2, "字段级拒绝不中断整批")
	assert.Equal(t, "valid", records[0].FieldName)
	assert.Equal(t, "also_valid", records[1].FieldName)
}

func TestNormalizeInfersTypeFromSamples(t *testing.T) {
	fields := []adapter.RawField{
		{Name: "name", Samples: []interface{}{nil, "Alice"}},
		{Name: "age", Samples: []interface{}{float64(42)}},
		{Name: "score", Samples: []interface{}{3.14}},
		{Name: "active", Samples: []interface{}{true}},
		{Name: "address", Samples: []interface{}{map[string]interface{}{"city": "Berlin"}}},
		{Name: "tags", Samples: []interface{}{[]interface{}{"a"}}},
		{Name: "empty", Samples: []interface{}{nil, nil}},
		{Name: "missing"},
	}

	records, rejected := Normalize(SourceAPI, "http://api/users", "users", fields)
	assert.Equal(t, 0, rejected)

	got := make(map[string]string)
	for _, r := range records {
		got[r.FieldName] = r.DeclaredType
	}
	assert.Equal(t, "string", got["name"], "第一个非空样本决定类型")
	assert.Equal(t, "integer", got["age"])
	assert.Equal(t, "float", got["score"])
	assert.Equal(t, "boolean", got["active"])
	assert.Equal(t, "object", got["address"])
	assert.Equal(t, "array", got["tags"])
	assert.Equal(t, "unknown", got["empty"])
	assert.Equal(t, "unknown", got["missing"])
}

func TestNormalizeSampleValue(t *testing.T) {
	fields := []adapter.RawField{
		{Name: "a", Sample: "explicit"},
		{Name: "b", Samples: []interface{}{nil, "from-samples"}},
	}

	records, _ := Normalize(SourceFile, "files", "data", fields)
	assert.Equal(t, "explicit", records[0].SampleValue)
	assert.Equal(t, "from-samples", records[1].SampleValue)
}

func TestClassifyValue(t *testing.T) {
	tests := []struct {
		value    interface{}
		expected string
	}{
		{nil, "null"},
		{true, "boolean"},
		{"x", "string"},
		{int64(7), "integer"},
		{float64(7), "integer"}, // JSON 数字整数值归 integer
		{7.5, "float"},
		{map[string]interface{}{}, "object"},
		{[]interface{}{}, "array"},
		{struct{}{}, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyValue(tt.value), "value %v", tt.value)
	}
}
