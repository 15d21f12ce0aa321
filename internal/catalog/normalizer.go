package catalog

import (
	"fmt"
	"math"
	"strings"

	"metadata-crawler/internal/adapter"
)

// Normalize 把适配器产出的原始字段映射为规范记录
// 数据库的类型名原样保留；API/文件按观测值形状推断基础类型。
// 字段名为空是字段级错误：跳过并计数，不中断整批。
func Normalize(st SourceType, sourceID, container string, fields []adapter.RawField) (records []CanonicalRecord, rejected int) {
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			rejected++
			continue
		}

		declaredType := f.TypeHint
		if declaredType == "" {
			declaredType = classifySamples(f.Samples)
		}

		nullable := true
		if f.Nullable != nil {
			nullable = *f.Nullable
		}

		sample := f.Sample
		if sample == "" {
			sample = firstSample(f.Samples)
		}

		rec := CanonicalRecord{
			SourceType:    st,
			SourceID:      sourceID,
			ContainerName: container,
			FieldName:     f.Name,
			DeclaredType:  declaredType,
			Nullable:      nullable,
			IsPrimaryKey:  f.IsPrimaryKey,
			IsForeignKey:  f.IsForeignKey,
			SampleValue:   sample,
		}
		if f.FKTarget != nil {
			rec.FKTargetContainer = f.FKTarget.Container
			rec.FKTargetField = f.FKTarget.Field
		}
		records = append(records, rec)
	}
	return records, rejected
}

// classifySamples 第一个非空值决定类型，全空则 unknown
func classifySamples(samples []interface{}) string {
	for _, v := range samples {
		if v != nil {
			return classifyValue(v)
		}
	}
	return "unknown"
}

// classifyValue 按值的形状分类基础类型
func classifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer"
	case float64:
		// JSON 解码后的数字统一是 float64，整数值按 integer 归类
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return "integer"
		}
		return "float"
	case float32:
		return classifyValue(float64(t))
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return "unknown"
	}
}

func firstSample(samples []interface{}) string {
	for _, v := range samples {
		if v != nil {
			s := fmt.Sprintf("%v", v)
			if len(s) > 100 {
				s = s[:100]
			}
			return s
		}
	}
	return ""
}
