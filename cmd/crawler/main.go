package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"metadata-crawler/internal/adapter"
	"metadata-crawler/internal/analyzer"
	"metadata-crawler/internal/catalog"
	"metadata-crawler/internal/crawler"
	"metadata-crawler/internal/renderer"
	"metadata-crawler/internal/store"
)

var (
	dbType     string
	dbConn     string
	dbSchema   string
	apiURLs    []string
	apiTimeout time.Duration
	filePaths  []string
	filesID    string
	outputDir  string
	threshold  float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "metadata-crawler",
		Short: "多源元数据爬取器",
		Long:  "爬取数据库、API 和文件的结构元数据，推断血缘关系，生成统一数据字典",
	}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "爬取数据源并生成数据字典",
		Run:   runScan,
	}

	scanCmd.Flags().StringVar(&dbType, "db-type", "sqlite", "数据库类型 (sqlite/mysql/sqlserver/postgres)")
	scanCmd.Flags().StringVar(&dbConn, "db-conn", "", "数据库连接串或文件路径")
	scanCmd.Flags().StringVar(&dbSchema, "db-schema", "", "数据库 schema (MySQL 必需)")
	scanCmd.Flags().StringSliceVar(&apiURLs, "api", nil, "API 端点 URL（可重复）")
	scanCmd.Flags().DurationVar(&apiTimeout, "api-timeout", 30*time.Second, "API 请求超时")
	scanCmd.Flags().StringSliceVar(&filePaths, "file", nil, "CSV/JSON 文件路径（可重复）")
	scanCmd.Flags().StringVar(&filesID, "files-id", "files", "文件数据源标识")
	scanCmd.Flags().StringVar(&outputDir, "output", "./output", "输出目录")
	scanCmd.Flags().Float64Var(&threshold, "threshold", analyzer.DefaultThreshold, "启发式关系的置信度下限")

	rootCmd.AddCommand(scanCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type crawlJob struct {
	sourceType catalog.SourceType
	adapter    adapter.SourceAdapter
}

func runScan(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	jobs := buildJobs()
	if len(jobs) == 0 {
		log.Fatal("请至少指定一个数据源 (--db-conn / --api / --file)")
	}

	logger := hclog.New(&hclog.LoggerOptions{Name: "crawler", Level: hclog.Warn})
	catalogStore := store.New(analyzer.NewRelationshipInferer(threshold))
	orch := crawler.New(catalogStore, logger)

	fmt.Printf("🔍 开始爬取 %d 个数据源...\n", len(jobs))

	// 进度事件统一打印
	progress := make(chan crawler.Progress, 64)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			switch p.Stage {
			case crawler.StageContainerFinished:
				fmt.Printf("  ✓ %s (累计 %d 条记录)\n", p.Container, p.Records)
			case crawler.StageContainerFailed:
				fmt.Printf("  ✗ %s: %s\n", p.Container, p.Error)
			}
		}
	}()

	// 不同数据源并发爬取
	var wg sync.WaitGroup
	outcomes := make([]crawler.Outcome, len(jobs))
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j crawlJob) {
			defer wg.Done()
			defer j.adapter.Close()
			out, err := orch.Crawl(ctx, j.sourceType, j.adapter, progress)
			if err != nil {
				out.Message = err.Error()
			}
			outcomes[i] = out
		}(i, j)
	}
	wg.Wait()
	close(progress)
	<-drained

	for _, out := range outcomes {
		switch out.Status {
		case crawler.StatusSucceeded:
			fmt.Printf("✓ %s: %s\n", out.SourceID, out.Message)
		case crawler.StatusPartial:
			fmt.Printf("⚠ %s: %s\n", out.SourceID, out.Message)
		default:
			fmt.Printf("✗ %s: %s\n", out.SourceID, out.Message)
		}
	}

	stats := catalogStore.Statistics()
	fmt.Printf("\n📊 记录 %d 条，关系 %d 条\n", stats.TotalRecords, stats.TotalRelationships)

	writeOutputs(catalogStore)
	fmt.Println("\n✅ 完成！")
}

// buildJobs 按命令行参数组装适配器
func buildJobs() []crawlJob {
	var jobs []crawlJob

	if dbConn != "" {
		var a adapter.SourceAdapter
		var err error
		switch dbType {
		case "sqlite":
			a, err = adapter.NewSQLiteAdapter(dbConn)
		case "mysql":
			if dbSchema == "" {
				log.Fatal("MySQL 需要指定 --db-schema 参数")
			}
			a, err = adapter.NewMySQLAdapter(dbConn, dbSchema)
		case "sqlserver":
			a, err = adapter.NewSQLServerAdapter(dbConn)
		case "postgres":
			a, err = adapter.NewPostgresAdapter(dbConn)
		default:
			log.Fatalf("不支持的数据库类型: %s", dbType)
		}
		if err != nil {
			log.Fatalf("连接数据库失败: %v", err)
		}
		jobs = append(jobs, crawlJob{sourceType: catalog.SourceDatabase, adapter: a})
	}

	for _, u := range apiURLs {
		jobs = append(jobs, crawlJob{
			sourceType: catalog.SourceAPI,
			adapter:    adapter.NewAPIAdapter(u, nil, apiTimeout),
		})
	}

	if len(filePaths) > 0 {
		jobs = append(jobs, crawlJob{
			sourceType: catalog.SourceFile,
			adapter:    adapter.NewFileAdapter(filesID, filePaths),
		})
	}

	return jobs
}

// writeOutputs 生成数据字典、血缘图和 JSON 快照
func writeOutputs(catalogStore *store.Store) {
	fmt.Println("\n📝 生成输出文件...")
	os.MkdirAll(outputDir, 0755)

	snap := catalogStore.Export()

	mdContent := renderer.NewMarkdownRenderer().Render(snap)
	os.WriteFile(fmt.Sprintf("%s/dict.md", outputDir), []byte(mdContent), 0644)
	fmt.Printf("✓ %s/dict.md\n", outputDir)

	mermaidContent := renderer.NewMermaidRenderer().Render(snap)
	os.WriteFile(fmt.Sprintf("%s/lineage.mmd", outputDir), []byte(mermaidContent), 0644)
	fmt.Printf("✓ %s/lineage.mmd\n", outputDir)

	jsonData, _ := json.MarshalIndent(snap, "", "  ")
	os.WriteFile(fmt.Sprintf("%s/snapshot.json", outputDir), jsonData, 0644)
	fmt.Printf("✓ %s/snapshot.json\n", outputDir)
}
