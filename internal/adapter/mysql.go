package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL 适配器
type MySQLAdapter struct {
	db      *sql.DB
	connStr string
	schema  string
}

// NewMySQLAdapter 创建 MySQL 适配器
func NewMySQLAdapter(connStr, schema string) (*MySQLAdapter, error) {
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &MySQLAdapter{db: db, connStr: connStr, schema: schema}, nil
}

// SourceID 数据源标识
func (a *MySQLAdapter) SourceID() string {
	return a.connStr
}

// Containers 列出所有表
func (a *MySQLAdapter) Containers(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	rows, err := a.db.QueryContext(ctx, query, a.schema)
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
func (a *MySQLAdapter) ExtractContainer(ctx context.Context, table string) ([]RawField, error) {
	fkTargets, err := a.foreignKeyTargets(ctx, table)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			IS_NULLABLE = 'YES',
			COLUMN_KEY = 'PRI'
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	rows, err := a.db.QueryContext(ctx, query, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	var fields []RawField
	for rows.Next() {
		var name, dataType string
		var nullable, isPK bool
		if err := rows.Scan(&name, &dataType, &nullable, &isPK); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		f := RawField{
			Name:         name,
			TypeHint:     dataType,
			Nullable:     boolPtr(nullable),
			IsPrimaryKey: isPK,
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
func (a *MySQLAdapter) foreignKeyTargets(ctx context.Context, table string) (map[string]FieldRef, error) {
	query := `
		SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
	`
	rows, err := a.db.QueryContext(ctx, query, a.schema, table)
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
func (a *MySQLAdapter) Close() error {
	return a.db.Close()
}
