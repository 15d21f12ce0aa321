package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// APIAdapter HTTP API 适配器
// 请求端点并从响应 JSON 的形状推断字段结构，一个端点对应一个容器。
type APIAdapter struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewAPIAdapter 创建 API 适配器
func NewAPIAdapter(endpoint string, headers map[string]string, timeout time.Duration) *APIAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIAdapter{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}
}

// SourceID 数据源标识
func (a *APIAdapter) SourceID() string {
	return a.endpoint
}

// Containers 端点即容器，取 URL 最后一段作为容器名
func (a *APIAdapter) Containers(ctx context.Context) ([]string, error) {
	return []string{endpointName(a.endpoint)}, nil
}

// ExtractContainer 请求端点并展平响应 JSON
func (a *APIAdapter) ExtractContainer(ctx context.Context, name string) ([]RawField, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return flattenJSON(data, ""), nil
}

// Close API 适配器无持久连接
func (a *APIAdapter) Close() error {
	return nil
}

// endpointName 取 URL 最后一个非空路径段，没有则为 root
func endpointName(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err == nil && u.Path != "" {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := parts[len(parts)-1]; last != "" {
			return last
		}
	}
	return "root"
}

// flattenJSON 把嵌套 JSON 展平成带点号路径的字段列表
// 映射逐键展开并递归，数组取第一个元素代表整体形状。
func flattenJSON(v interface{}, prefix string) []RawField {
	var out []RawField

	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			name := k
			if prefix != "" {
				name = prefix + "." + k
			}
			out = append(out, inferredField(name, t[k]))

			switch t[k].(type) {
			case map[string]interface{}, []interface{}:
				out = append(out, flattenJSON(t[k], name)...)
			}
		}
	case []interface{}:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]interface{}); ok {
				out = append(out, flattenJSON(m, prefix)...)
			}
		}
	}

	return out
}

// inferredField 根据观测值构造原始字段
// 非数据库源没有主键约束，按约定把恰好叫 id 的字段当作主键。
func inferredField(name string, v interface{}) RawField {
	f := RawField{Name: name, Samples: []interface{}{v}}
	if v != nil {
		f.Sample = truncate(fmt.Sprintf("%v", v), 100)
	}
	leaf := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		leaf = name[i+1:]
	}
	if strings.EqualFold(leaf, "id") {
		f.IsPrimaryKey = true
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
