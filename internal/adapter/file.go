package adapter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// 文件字段推断读取的采样行数
const fileSampleRows = 5

// FileAdapter 文件适配器
// 一次爬取覆盖一批文件，每个文件是一个容器（容器名取不带扩展名的文件名）。
// 支持 CSV 和 JSON。
type FileAdapter struct {
	sourceID string
	paths    map[string]string // 容器名 -> 路径
	order    []string
}

// NewFileAdapter 创建文件适配器
func NewFileAdapter(sourceID string, paths []string) *FileAdapter {
	a := &FileAdapter{sourceID: sourceID, paths: make(map[string]string)}
	for _, p := range paths {
		name := containerName(p)
		if _, exists := a.paths[name]; !exists {
			a.order = append(a.order, name)
		}
		a.paths[name] = p
	}
	return a
}

// SourceID 数据源标识
func (a *FileAdapter) SourceID() string {
	return a.sourceID
}

// Containers 列出所有文件容器
func (a *FileAdapter) Containers(ctx context.Context) ([]string, error) {
	return append([]string(nil), a.order...), nil
}

// ExtractContainer 抽取单个文件的字段结构
func (a *FileAdapter) ExtractContainer(ctx context.Context, name string) ([]RawField, error) {
	path, ok := a.paths[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown container %q", ErrMalformed, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return a.extractCSV(path)
	case ".json":
		return a.extractJSON(path)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrMalformed, filepath.Ext(path))
	}
}

// Close 文件适配器无持久句柄
func (a *FileAdapter) Close() error {
	return nil
}

// extractCSV 读取表头和前几行样本推断列结构
func (a *FileAdapter) extractCSV(path string) ([]RawField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	samples := make([][]interface{}, len(header))
	for i := 0; i < fileSampleRows; i++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for col := range header {
			if col < len(row) {
				samples[col] = append(samples[col], parseCSVValue(row[col]))
			}
		}
	}

	var fields []RawField
	for i, name := range header {
		fld := RawField{Name: name, Samples: samples[i]}
		for _, s := range samples[i] {
			if s != nil {
				fld.Sample = truncate(fmt.Sprintf("%v", s), 100)
				break
			}
		}
		if strings.EqualFold(name, "id") {
			fld.IsPrimaryKey = true
		}
		fields = append(fields, fld)
	}
	return fields, nil
}

// extractJSON 读取并展平 JSON 文件
func (a *FileAdapter) extractJSON(path string) ([]RawField, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return flattenJSON(data, ""), nil
}

// parseCSVValue CSV 单元格是纯文本，按内容还原成最可能的类型
func parseCSVValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// containerName 文件名去掉扩展名作为容器名
func containerName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
