package catalog

import "fmt"

// SourceType 数据源类型
type SourceType string

const (
	SourceDatabase SourceType = "database"
	SourceAPI      SourceType = "api"
	SourceFile     SourceType = "file"
)

// RecordKey 规范记录的唯一标识
// 同一 source_id 重爬时标识保持稳定，关系边可以安全重算。
type RecordKey struct {
	SourceType    SourceType `json:"source_type"`
	SourceID      string     `json:"source_id"`
	ContainerName string     `json:"container_name"`
	FieldName     string     `json:"field_name"`
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s://%s/%s.%s", k.SourceType, k.SourceID, k.ContainerName, k.FieldName)
}

// CanonicalRecord 规范记录
// 所有数据源的字段/列/属性统一映射成这一个形状。
type CanonicalRecord struct {
	SourceType    SourceType `json:"source_type"`
	SourceID      string     `json:"source_id"`
	ContainerName string     `json:"container_name"` // 表 / 端点 / 文件
	FieldName     string     `json:"field_name"`
	DeclaredType  string     `json:"declared_type"` // 源类型名或推断的基础类型
	Nullable      bool       `json:"nullable"`
	IsPrimaryKey  bool       `json:"is_primary_key"`
	IsForeignKey  bool       `json:"is_foreign_key"`

	// 源声明的外键目标（仅数据库），供关系推断使用
	FKTargetContainer string `json:"fk_target_container,omitempty"`
	FKTargetField     string `json:"fk_target_field,omitempty"`

	// 仅用于展示，关系推断不使用
	SampleValue string `json:"sample_value,omitempty"`
}

// Key 记录标识
func (r CanonicalRecord) Key() RecordKey {
	return RecordKey{
		SourceType:    r.SourceType,
		SourceID:      r.SourceID,
		ContainerName: r.ContainerName,
		FieldName:     r.FieldName,
	}
}

// EdgeKind 关系边类型
type EdgeKind string

const (
	EdgeForeignKey EdgeKind = "foreign_key"           // 源声明的外键
	EdgeNameMatch  EdgeKind = "heuristic_name_match"  // 命名约定推断
)

// RelationshipEdge 关系边（有向）
// foreign_key 边置信度恒为 1.0，启发式边带计算得分。
type RelationshipEdge struct {
	From       RecordKey `json:"from"`
	To         RecordKey `json:"to"`
	Kind       EdgeKind  `json:"kind"`
	Confidence float64   `json:"confidence"` // 0-1
}
