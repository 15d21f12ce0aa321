package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteAdapter SQLite 适配器
type SQLiteAdapter struct {
	db   *sql.DB
	path string
}

// NewSQLiteAdapter 创建 SQLite 适配器
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &SQLiteAdapter{db: db, path: path}, nil
}

// SourceID 数据源标识
func (a *SQLiteAdapter) SourceID() string {
	return a.path
}

// Containers 列出所有表
func (a *SQLiteAdapter) Containers(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// ExtractContainer 抽取单个表的列信息
func (a *SQLiteAdapter) ExtractContainer(ctx context.Context, table string) ([]RawField, error) {
	fkTargets, err := a.foreignKeyTargets(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	var fields []RawField
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		f := RawField{
			Name:         name,
			TypeHint:     dataType,
			Nullable:     boolPtr(notNull == 0),
			IsPrimaryKey: pk > 0,
		}
		if target, ok := fkTargets[name]; ok {
			f.IsForeignKey = true
			f.FKTarget = &target
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// foreignKeyTargets 读取表的外键约束，列名 -> 目标
func (a *SQLiteAdapter) foreignKeyTargets(ctx context.Context, table string) (map[string]FieldRef, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	targets := make(map[string]FieldRef)
	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		// to 为 NULL 时引用的是目标表的隐式主键
		toField := to.String
		if toField == "" {
			toField = "id"
		}
		targets[from] = FieldRef{Container: refTable, Field: toField}
	}
	return targets, rows.Err()
}

// Close 关闭连接
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
