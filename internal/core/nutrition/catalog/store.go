package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"nutrition-resolver/internal/pkg/common"
)

// Store 目錄數據來源
type Store interface {
	LoadEntries(ctx context.Context, kind common.CatalogKind) ([]common.CatalogEntry, error)
}

// 預設表名
const (
	DefaultReadyTable = "products"
	DefaultBrandTable = "productbrend"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options 資料庫連線選項
type Options struct {
	Driver     string // sqlite | postgres
	DSN        string
	ReadyTable string
	BrandTable string
}

// SQLStore 以 database/sql 讀取目錄，支援 sqlite 與 postgres
type SQLStore struct {
	db     *sql.DB
	driver string
	tables map[common.CatalogKind]string
}

// Open 開啟資料庫並測試連線
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "postgresql" {
		driver = "postgres"
	}
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported catalog driver %q", opts.Driver)
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// 記憶體資料庫每個連線各自獨立
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewSQLStore(db, driver, opts.ReadyTable, opts.BrandTable)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore 使用現有連線；表名為空時使用預設值
func NewSQLStore(db *sql.DB, driver, readyTable, brandTable string) (*SQLStore, error) {
	if readyTable == "" {
		readyTable = DefaultReadyTable
	}
	if brandTable == "" {
		brandTable = DefaultBrandTable
	}
	for _, t := range []string{readyTable, brandTable} {
		if !identifierPattern.MatchString(t) {
			return nil, fmt.Errorf("invalid catalog table name %q", t)
		}
	}

	return &SQLStore{
		db:     db,
		driver: driver,
		tables: map[common.CatalogKind]string{
			common.CatalogReady: readyTable,
			common.CatalogBrand: brandTable,
		},
	}, nil
}

// Close 關閉連線
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping 檢查資料庫是否可用
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) table(kind common.CatalogKind) (string, error) {
	t, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown catalog kind %q", kind)
	}
	return t, nil
}

// Migrate 建立目錄表（若不存在）
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, kind := range []common.CatalogKind{common.CatalogReady, common.CatalogBrand} {
		table, err := s.table(kind)
		if err != nil {
			return err
		}
		ddl := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            name TEXT,
            kcal REAL,
            protein REAL,
            fat REAL,
            carb REAL,
            fiber REAL
        )`, table)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// Insert 寫入目錄條目（種子數據）
func (s *SQLStore) Insert(ctx context.Context, kind common.CatalogKind, entries []common.CatalogEntry) error {
	table, err := s.table(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("INSERT INTO %s (name, kcal, protein, fat, carb, fiber) VALUES (?, ?, ?, ?, ?, ?)", table)
	if s.driver == "postgres" {
		query = fmt.Sprintf("INSERT INTO %s (name, kcal, protein, fat, carb, fiber) VALUES ($1, $2, $3, $4, $5, $6)", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Name, e.Kcal, e.Protein, e.Fat, e.Carb, e.Fiber); err != nil {
			return fmt.Errorf("failed to insert %q: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadEntries 讀取指定目錄的所有條目
//
// 名稱或營養值為 NULL、或任一營養值為負的列會被記錄並跳過。
func (s *SQLStore) LoadEntries(ctx context.Context, kind common.CatalogKind) ([]common.CatalogEntry, error) {
	table, err := s.table(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT name, kcal, protein, fat, carb, fiber FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var (
		entries []common.CatalogEntry
		skipped int
	)
	for rows.Next() {
		var (
			name                         sql.NullString
			kcal, protein, fat, carb, fb sql.NullFloat64
		)
		if err := rows.Scan(&name, &kcal, &protein, &fat, &carb, &fb); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		if !name.Valid || strings.TrimSpace(name.String) == "" ||
			!kcal.Valid || !protein.Valid || !fat.Valid || !carb.Valid || !fb.Valid {
			skipped++
			common.LogWarn("目錄資料列缺少欄位，已跳過",
				zap.String("table", table),
				zap.String("name", name.String),
			)
			continue
		}

		record := common.NutritionRecord{
			Kcal:    kcal.Float64,
			Protein: protein.Float64,
			Fat:     fat.Float64,
			Carb:    carb.Float64,
			Fiber:   fb.Float64,
		}
		if !record.Valid() {
			skipped++
			common.LogWarn("目錄資料列營養值無效，已跳過",
				zap.String("table", table),
				zap.String("name", name.String),
				zap.Any("record", sanitize(record)),
			)
			continue
		}

		entries = append(entries, common.CatalogEntry{Name: name.String, NutritionRecord: record})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}

	common.LogInfo("目錄已讀取",
		zap.String("table", table),
		zap.Int("條目數", len(entries)),
		zap.Int("跳過", skipped),
	)
	return entries, nil
}

// zap 的 JSON encoder 無法輸出 NaN/Inf
func sanitize(r common.NutritionRecord) map[string]string {
	f := func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "non-finite"
		}
		return fmt.Sprintf("%g", v)
	}
	return map[string]string{
		"kcal": f(r.Kcal), "protein": f(r.Protein), "fat": f(r.Fat), "carb": f(r.Carb), "fiber": f(r.Fiber),
	}
}
