package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresAdapter PostgreSQL 适配器
type PostgresAdapter struct {
	db      *sql.DB
	connStr string
}

// NewPostgresAdapter 创建 PostgreSQL 适配器
func NewPostgresAdapter(connStr string) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &PostgresAdapter{db: db, connStr: connStr}, nil
}

// SourceID 数据源标识
func (a *PostgresAdapter) SourceID() string {
	return a.connStr
}

// Containers 列出当前 schema 下的所有表
func (a *PostgresAdapter) Containers(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name
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
func (a *PostgresAdapter) ExtractContainer(ctx context.Context, table string) ([]RawField, error) {
	fkTargets, err := a.foreignKeyTargets(ctx, table)
	if err != nil {
		return nil, err
	}
	pks, err := a.primaryKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	var fields []RawField
	for rows.Next() {
		var name, dataType string
		var nullable bool
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		f := RawField{
			Name:         name,
			TypeHint:     dataType,
			Nullable:     boolPtr(nullable),
			IsPrimaryKey: pks[name],
		}
		if target, ok := fkTargets[name]; ok {
			f.IsForeignKey = true
			f.FKTarget = &target
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// primaryKeys 读取表的主键列集合
func (a *PostgresAdapter) primaryKeys(ctx context.Context, table string) (map[string]bool, error) {
	query := `
		SELECT ku.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage ku
			ON tc.constraint_name = ku.constraint_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = current_schema() AND tc.table_name = $1
	`
	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	pks := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		pks[name] = true
	}
	return pks, rows.Err()
}

// foreignKeyTargets 读取表的外键约束，列名 -> 目标
func (a *PostgresAdapter) foreignKeyTargets(ctx context.Context, table string) (map[string]FieldRef, error) {
	query := `
		SELECT
			kcu.column_name,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = current_schema() AND tc.table_name = $1
	`
	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	targets := make(map[string]FieldRef)
	for rows.Next() {
		var column, refTable, refColumn string
		if err := rows.Scan(&column, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		targets[column] = FieldRef{Container: refTable, Field: refColumn}
	}
	return targets, rows.Err()
}

// Close 关闭连接
func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}
