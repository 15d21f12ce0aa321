package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"metadata-crawler/internal/adapter"
	"metadata-crawler/internal/analyzer"
	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/crawler"
	"metadata-crawler/internal/renderer"
	"metadata-crawler/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// CrawlRequest 爬取请求
type CrawlRequest struct {
	SourceType string            `json:"source_type"` // database/api/file
	DBType     string            `json:"db_type"`     // sqlite/mysql/sqlserver/postgres
	Conn       string            `json:"conn"`        // 连接串或文件路径
	Schema     string            `json:"schema"`      // Schema（MySQL需要）
	URL        string            `json:"url"`         // API 端点
	Headers    map[string]string `json:"headers"`     // API 请求头
	Files      []string          `json:"files"`       // 文件路径列表
	FilesID    string            `json:"files_id"`    // 文件数据源标识
	TimeoutSec int               `json:"timeout_sec"` // 适配器超时（秒）
}

// CrawlTask 爬取任务
type CrawlTask struct {
	ID        string            `json:"id"`
	SourceID  string            `json:"source_id"`
	Status    crawler.Status    `json:"status"`
	Progress  *crawler.Progress `json:"progress,omitempty"` // 最近一条进度
	Outcome   *crawler.Outcome  `json:"outcome,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`

	cancel context.CancelFunc
}

var (
	logger       hclog.Logger
	catalogStore *store.Store
	orch         *crawler.Orchestrator

	tasks   = make(map[string]*CrawlTask)
	tasksMu sync.RWMutex
)

func main() {
	logger = hclog.New(&hclog.LoggerOptions{Name: "metadata-server"})
	catalogStore = store.New(analyzer.NewRelationshipInferer(analyzer.DefaultThreshold))
	orch = crawler.New(catalogStore, logger)

	http.HandleFunc("/api/crawl", handleCrawl)
	http.HandleFunc("/api/task/", handleTaskStatus)
	http.HandleFunc("/api/cancel", handleCancel)
	http.HandleFunc("/api/ws", handleWebSocket)
	http.HandleFunc("/api/search", handleSearch)
	http.HandleFunc("/api/statistics", handleStatistics)
	http.HandleFunc("/api/lineage", handleLineage)
	http.HandleFunc("/api/lineage/upstream", handleTraversal(catalogStore.Upstream))
	http.HandleFunc("/api/lineage/downstream", handleTraversal(catalogStore.Downstream))
	http.HandleFunc("/api/dictionary", handleDictionary)
	http.HandleFunc("/api/export", handleExport)
	http.HandleFunc("/api/clear", handleClear)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	fmt.Printf("🚀 Metadata Crawler Server\n")
	fmt.Printf("📡 服务地址: http://localhost:%s\n\n", port)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error("服务退出", "error", err)
		os.Exit(1)
	}
}

// handleCrawl 创建爬取任务
func handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sourceType, a, err := buildAdapter(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &CrawlTask{
		ID:        uuid.NewString(),
		SourceID:  a.SourceID(),
		Status:    crawler.StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		cancel:    cancel,
	}

	tasksMu.Lock()
	tasks[task.ID] = task
	tasksMu.Unlock()

	go runCrawl(ctx, task, sourceType, a)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"task_id": task.ID,
		"status":  string(crawler.StatusPending),
	})
}

// runCrawl 后台执行爬取并更新任务状态
func runCrawl(ctx context.Context, task *CrawlTask, sourceType catalog.SourceType, a adapter.SourceAdapter) {
	defer a.Close()
	defer task.cancel()

	progress := make(chan crawler.Progress, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			p := p
			tasksMu.Lock()
			task.Progress = &p
			task.UpdatedAt = time.Now()
			tasksMu.Unlock()
		}
	}()

	tasksMu.Lock()
	task.Status = crawler.StatusRunning
	task.UpdatedAt = time.Now()
	tasksMu.Unlock()

	out, _ := orch.Crawl(ctx, sourceType, a, progress)
	close(progress)
	<-drained

	tasksMu.Lock()
	task.Outcome = &out
	task.Status = out.Status
	task.UpdatedAt = time.Now()
	tasksMu.Unlock()
}

// buildAdapter 按请求参数组装适配器
func buildAdapter(req CrawlRequest) (catalog.SourceType, adapter.SourceAdapter, error) {
	timeout := time.Duration(req.TimeoutSec) * time.Second

	switch catalog.SourceType(req.SourceType) {
	case catalog.SourceDatabase:
		var a adapter.SourceAdapter
		var err error
		switch req.DBType {
		case "sqlite":
			a, err = adapter.NewSQLiteAdapter(req.Conn)
		case "mysql":
			a, err = adapter.NewMySQLAdapter(req.Conn, req.Schema)
		case "sqlserver":
			a, err = adapter.NewSQLServerAdapter(req.Conn)
		case "postgres":
			a, err = adapter.NewPostgresAdapter(req.Conn)
		default:
			return "", nil, fmt.Errorf("不支持的数据库类型: %s", req.DBType)
		}
		return catalog.SourceDatabase, a, err
	case catalog.SourceAPI:
		if req.URL == "" {
			return "", nil, fmt.Errorf("API 爬取需要 url 参数")
		}
		return catalog.SourceAPI, adapter.NewAPIAdapter(req.URL, req.Headers, timeout), nil
	case catalog.SourceFile:
		if len(req.Files) == 0 {
			return "", nil, fmt.Errorf("文件爬取需要 files 参数")
		}
		id := req.FilesID
		if id == "" {
			id = "files"
		}
		return catalog.SourceFile, adapter.NewFileAdapter(id, req.Files), nil
	default:
		return "", nil, fmt.Errorf("不支持的数据源类型: %s", req.SourceType)
	}
}

// handleTaskStatus 查询任务状态
func handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := filepath.Base(r.URL.Path)

	tasksMu.RLock()
	task, exists := tasks[taskID]
	var snapshot CrawlTask
	if exists {
		snapshot = *task
	}
	tasksMu.RUnlock()

	if !exists {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	writeJSON(w, snapshot)
}

// handleCancel 取消爬取任务
func handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := r.URL.Query().Get("task_id")
	tasksMu.RLock()
	task, exists := tasks[taskID]
	tasksMu.RUnlock()

	if !exists {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	task.cancel()
	writeJSON(w, map[string]string{"task_id": taskID, "status": "cancelling"})
}

// handleWebSocket 推送任务进度，终态后断开
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket 升级失败", "error", err)
		return
	}
	defer conn.Close()

	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		tasksMu.RLock()
		task, exists := tasks[taskID]
		var snapshot CrawlTask
		if exists {
			snapshot = *task
		}
		tasksMu.RUnlock()

		if !exists {
			break
		}
		if err := conn.WriteJSON(snapshot); err != nil {
			break
		}
		if snapshot.Status == crawler.StatusSucceeded ||
			snapshot.Status == crawler.StatusPartial ||
			snapshot.Status == crawler.StatusFailed {
			break
		}
	}
}

// handleSearch 过滤检索记录
func handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records := catalogStore.Query(store.Filter{
		SourceType: catalog.SourceType(q.Get("source_type")),
		Container:  q.Get("container"),
		Field:      q.Get("field"),
	})
	writeJSON(w, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// handleStatistics 目录统计
func handleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, catalogStore.Statistics())
}

// handleLineage 某容器相关的关系边
func handleLineage(w http.ResponseWriter, r *http.Request) {
	container := r.URL.Query().Get("container")
	if container == "" {
		http.Error(w, "container parameter required", http.StatusBadRequest)
		return
	}
	writeJSON(w, catalogStore.EdgesFor(container))
}

// handleTraversal 上游/下游遍历
func handleTraversal(walk func(catalog.RecordKey, int) []catalog.CanonicalRecord) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key := catalog.RecordKey{
			SourceType:    catalog.SourceType(q.Get("source_type")),
			SourceID:      q.Get("source_id"),
			ContainerName: q.Get("container"),
			FieldName:     q.Get("field"),
		}
		depth, _ := strconv.Atoi(q.Get("depth")) // 0 表示不限深度
		writeJSON(w, walk(key, depth))
	}
}

// handleDictionary 渲染 Markdown 数据字典
func handleDictionary(w http.ResponseWriter, r *http.Request) {
	md := renderer.NewMarkdownRenderer().Render(catalogStore.Export())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}

// handleExport 导出只读快照
func handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, catalogStore.Export())
}

// handleClear 清空目录
func handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	catalogStore.Clear()
	writeJSON(w, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
