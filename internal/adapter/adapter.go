package adapter

import (
	"context"
	"errors"
)

// 适配器错误分类：
// ErrUnreachable 表示连不上数据源（网络/文件打开失败），
// ErrMalformed 表示源内容无法解析。调用方用 errors.Is 区分。
var (
	ErrUnreachable = errors.New("source unreachable")
	ErrMalformed   = errors.New("source malformed")
)

// SourceAdapter 数据源适配器接口
// 每种数据源（数据库/API/文件）实现同一能力：列出容器，按容器抽取字段。
// 逐容器抽取让单个容器失败不影响其余容器，取消也能在容器之间生效。
type SourceAdapter interface {
	// SourceID 数据源标识（连接串/URL/路径）
	SourceID() string

	// Containers 列出数据源内的容器（表/端点/文件）
	Containers(ctx context.Context) ([]string, error)

	// ExtractContainer 抽取单个容器的原始字段描述
	ExtractContainer(ctx context.Context, name string) ([]RawField, error)

	// Close 释放连接
	Close() error
}

// FieldRef 字段引用（外键目标）
type FieldRef struct {
	Container string `json:"container"`
	Field     string `json:"field"`
}

// RawField 原始字段描述
// 只有 Name 必填，其余属性按数据源能力填充。
type RawField struct {
	Name         string        `json:"name"`
	TypeHint     string        `json:"type_hint,omitempty"` // 源声明的类型名（数据库）
	Nullable     *bool         `json:"nullable,omitempty"`  // nil 表示未知
	IsPrimaryKey bool          `json:"is_primary_key,omitempty"`
	IsForeignKey bool          `json:"is_foreign_key,omitempty"`
	FKTarget     *FieldRef     `json:"fk_target,omitempty"`
	Samples      []interface{} `json:"-"`                // 观测到的运行时值（API/文件），用于类型推断
	Sample       string        `json:"sample,omitempty"` // 展示用样本值
}

func boolPtr(b bool) *bool {
	return &b
}
