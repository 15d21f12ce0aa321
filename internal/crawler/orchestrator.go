package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"metadata-crawler/internal/adapter"
	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/store"
)

// ErrCrawlInProgress 同一 source_id 已有爬取在执行，直接拒绝不排队
var ErrCrawlInProgress = errors.New("crawl already in progress")

// Status 爬取状态机：pending -> running -> succeeded/partial/failed
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial" // 部分容器成功
	StatusFailed    Status = "failed"
)

// 进度事件类型
const (
	StageContainerStarted  = "container_started"
	StageContainerFinished = "container_finished"
	StageContainerFailed   = "container_failed"
)

// Progress 进度通知
// 仅供增量展示，发送不阻塞，丢失不影响正确性。
type Progress struct {
	CrawlID   string `json:"crawl_id"`
	SourceID  string `json:"source_id"`
	Container string `json:"container"`
	Stage     string `json:"stage"`
	Records   int    `json:"records"`  // 累计记录数
	Rejected  int    `json:"rejected"` // 累计拒绝字段数
	Error     string `json:"error,omitempty"`
}

// Outcome 单次爬取结果
type Outcome struct {
	CrawlID         string            `json:"crawl_id"`
	SourceID        string            `json:"source_id"`
	Status          Status            `json:"status"`
	Message         string            `json:"message"`
	RecordCount     int               `json:"record_count"`
	RejectedFields  int               `json:"rejected_fields"`
	ContainerErrors map[string]string `json:"container_errors,omitempty"`
}

// Orchestrator 爬取编排器
// 每次 Crawl 调用是一个独立的工作单元：调适配器、规范化、合入目录。
// 同一 source_id 同时只允许一个爬取在跑，保护目录的原子替换不变式；
// 不同 source_id 的爬取可以并发。
type Orchestrator struct {
	store *store.Store
	log   hclog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New 创建编排器
func New(st *store.Store, log hclog.Logger) *Orchestrator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Orchestrator{
		store:  st,
		log:    log,
		active: make(map[string]struct{}),
	}
}

// Crawl 执行一次爬取
// 单个容器失败只记录该容器并继续；字段级拒绝计数不中断。
// ctx 取消后不再发起新的容器抽取，已完成容器的结果仍会合入目录。
// 返回 ErrCrawlInProgress 表示同一 source_id 的爬取已在执行。
func (o *Orchestrator) Crawl(ctx context.Context, sourceType catalog.SourceType, a adapter.SourceAdapter, progress chan<- Progress) (Outcome, error) {
	sourceID := a.SourceID()
	if !o.acquire(sourceID) {
		return Outcome{SourceID: sourceID, Status: StatusFailed, Message: "该数据源已有爬取在执行"}, ErrCrawlInProgress
	}
	defer o.release(sourceID)

	out := Outcome{
		CrawlID:         uuid.NewString(),
		SourceID:        sourceID,
		Status:          StatusRunning,
		ContainerErrors: make(map[string]string),
	}
	o.log.Info("开始爬取", "crawl_id", out.CrawlID, "source_id", sourceID, "source_type", sourceType)

	containers, err := a.Containers(ctx)
	if err != nil {
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("列出容器失败: %v", err)
		o.log.Error("爬取失败", "crawl_id", out.CrawlID, "error", err)
		return out, nil
	}

	var collected []catalog.CanonicalRecord
	succeeded := 0
	cancelled := false

	for _, container := range containers {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		o.notify(progress, Progress{
			CrawlID: out.CrawlID, SourceID: sourceID, Container: container,
			Stage: StageContainerStarted, Records: len(collected), Rejected: out.RejectedFields,
		})

		fields, err := a.ExtractContainer(ctx, container)
		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			out.ContainerErrors[container] = err.Error()
			o.log.Warn("容器抽取失败", "crawl_id", out.CrawlID, "container", container, "error", err)
			o.notify(progress, Progress{
				CrawlID: out.CrawlID, SourceID: sourceID, Container: container,
				Stage: StageContainerFailed, Records: len(collected), Rejected: out.RejectedFields,
				Error: err.Error(),
			})
			continue
		}

		records, rejected := catalog.Normalize(sourceType, sourceID, container, fields)
		collected = append(collected, records...)
		out.RejectedFields += rejected
		succeeded++

		o.notify(progress, Progress{
			CrawlID: out.CrawlID, SourceID: sourceID, Container: container,
			Stage: StageContainerFinished, Records: len(collected), Rejected: out.RejectedFields,
		})
	}

	// 全部容器都失败时不动目录，保留上一代数据
	if succeeded > 0 || (len(containers) == 0 && !cancelled) {
		result := o.store.Ingest(sourceID, collected)
		o.log.Info("合入目录", "crawl_id", out.CrawlID, "added", result.Added, "replaced", result.Replaced)
	}
	out.RecordCount = len(collected)

	switch {
	case cancelled:
		if succeeded > 0 {
			out.Status = StatusPartial
			out.Message = fmt.Sprintf("爬取被取消，已合入 %d 个容器", succeeded)
		} else {
			out.Status = StatusFailed
			out.Message = "爬取被取消"
		}
	case len(containers) > 0 && succeeded == 0:
		out.Status = StatusFailed
		out.Message = fmt.Sprintf("全部 %d 个容器爬取失败", len(containers))
	case len(out.ContainerErrors) > 0:
		out.Status = StatusPartial
		out.Message = fmt.Sprintf("%d/%d 个容器成功，%d 条记录", succeeded, len(containers), out.RecordCount)
	default:
		out.Status = StatusSucceeded
		out.Message = fmt.Sprintf("成功爬取 %d 个容器，共 %d 条记录", succeeded, out.RecordCount)
	}

	o.log.Info("爬取结束", "crawl_id", out.CrawlID, "status", out.Status, "records", out.RecordCount)
	return out, nil
}

// notify 非阻塞发送进度，接收方跟不上就丢弃
func (o *Orchestrator) notify(ch chan<- Progress, p Progress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}

func (o *Orchestrator) acquire(sourceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[sourceID]; busy {
		return false
	}
	o.active[sourceID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sourceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, sourceID)
}
