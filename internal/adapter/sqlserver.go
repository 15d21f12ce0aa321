package adapter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
)

// SQLServerAdapter SQL Server 适配器
type SQLServerAdapter struct {
	db      *sql.DB
	connStr string
}

// NewSQLServerAdapter 创建 SQL Server 适配器
func NewSQLServerAdapter(connStr string) (*SQLServerAdapter, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return &SQLServerAdapter{db: db, connStr: connStr}, nil
}

// SourceID 数据源标识
func (a *SQLServerAdapter) SourceID() string {
	return a.connStr
}

// Containers 列出所有表
func (a *SQLServerAdapter) Containers(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
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
func (a *SQLServerAdapter) ExtractContainer(ctx context.Context, table string) ([]RawField, error) {
	fkTargets, err := a.foreignKeyTargets(ctx, table)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
				ON tc.CONSTRAINT_NAME = ku.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION
	`
	rows, err := a.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer rows.Close()

	var fields []RawField
	for rows.Next() {
		var name, dataType string
		var nullable, isPK int
		if err := rows.Scan(&name, &dataType, &nullable, &isPK); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}

		f := RawField{
			Name:         name,
			TypeHint:     dataType,
			Nullable:     boolPtr(nullable == 1),
			IsPrimaryKey: isPK == 1,
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
func (a *SQLServerAdapter) foreignKeyTargets(ctx context.Context, table string) (map[string]FieldRef, error) {
	query := `
		SELECT
			COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			OBJECT_NAME(fk.referenced_object_id),
			COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id)
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fk.object_id = fkc.constraint_object_id
		WHERE OBJECT_NAME(fk.parent_object_id) = @p1
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
func (a *SQLServerAdapter) Close() error {
	return a.db.Close()
}
