package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DecisionLogStore 记录每一轮决策循环，方便后续排查/可视化。
type DecisionLogStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// CycleRecord is one decision cycle: what the model said and what happened.
type CycleRecord struct {
	ID         int64    `json:"id"`
	TraceID    string   `json:"trace_id"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt int64    `json:"finished_at"`
	ProviderID string   `json:"provider_id"`
	Model      string   `json:"model"`
	Attempts   int      `json:"attempts"`
	SystemLen  int      `json:"system_prompt_len"`
	UserPrompt string   `json:"user_prompt"`
	RawOutput  string   `json:"raw_output"`
	Commands   []string `json:"commands"`
	Issues     []string `json:"issues,omitempty"`
	Symbols    []string `json:"symbols,omitempty"`
	Attempted  int      `json:"attempted"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Resolved   int      `json:"resolved"`
	Balance    string   `json:"balance"`
	Error      string   `json:"error,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// Query filters ListCycles.
type Query struct {
	Symbol     string
	OnlyErrors bool
	Limit      int
	Offset     int
}

// NewDecisionLogStore 初始化 SQLite 存储。
func NewDecisionLogStore(path string) (*DecisionLogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureDecisionLogSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DecisionLogStore{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 允许复用外部（例如 GORM）初始化的 SQLite 连接，避免多连接锁冲突。
func (s *DecisionLogStore) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("decision log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureDecisionLogSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB。
func (s *DecisionLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *DecisionLogStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("decision log store 未初始化")
	}
	return db, nil
}

// Insert 写入一条循环记录。
func (s *DecisionLogStore) Insert(ctx context.Context, rec CycleRecord) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	started := rec.StartedAt
	if started == 0 {
		started = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO cycle_logs
			(trace_id, started_at, finished_at, provider_id, model, attempts, system_prompt_len,
			 user_prompt, raw_output, commands_json, issues_json, symbols, attempted, succeeded,
			 failed, resolved, balance, error, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, started, rec.FinishedAt, rec.ProviderID, rec.Model, rec.Attempts, rec.SystemLen,
		rec.UserPrompt, rec.RawOutput, encodeJSON(rec.Commands), encodeJSON(rec.Issues),
		encodeSymbolBlob(rec.Symbols), rec.Attempted, rec.Succeeded, rec.Failed, rec.Resolved,
		rec.Balance, rec.Error, rec.Note, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectColumns = `SELECT id, trace_id, started_at, finished_at, provider_id, model, attempts,
		system_prompt_len, user_prompt, raw_output, commands_json, issues_json, symbols,
		attempted, succeeded, failed, resolved, balance, error, note
		FROM cycle_logs`

// GetByTraceID 根据 trace id 返回单条记录。
func (s *DecisionLogStore) GetByTraceID(ctx context.Context, traceID string) (CycleRecord, error) {
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return CycleRecord{}, fmt.Errorf("trace_id 不能为空")
	}
	db, err := s.handle()
	if err != nil {
		return CycleRecord{}, err
	}
	row := db.QueryRowContext(ctx, selectColumns+` WHERE trace_id = ? ORDER BY id DESC LIMIT 1`, traceID)
	return scanCycleRecord(row)
}

// ListCycles 返回最新的循环记录，支持按 symbol/错误过滤。
func (s *DecisionLogStore) ListCycles(ctx context.Context, q Query) ([]CycleRecord, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	filterSQL, args := buildFilter(q)
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, selectColumns+filterSQL+" ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []CycleRecord
	for rows.Next() {
		rec, err := scanCycleRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// CountCycles 统计满足筛选条件的记录数量。
func (s *DecisionLogStore) CountCycles(ctx context.Context, q Query) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	filterSQL, args := buildFilter(q)
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycle_logs`+filterSQL, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func buildFilter(q Query) (string, []interface{}) {
	var args []interface{}
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		sb.WriteString(" AND symbols LIKE ?")
		args = append(args, "%|"+sym+"|%")
	}
	if q.OnlyErrors {
		sb.WriteString(" AND (error IS NOT NULL AND error <> '')")
	}
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCycleRecord(scanner rowScanner) (CycleRecord, error) {
	var (
		rec      CycleRecord
		provider sql.NullString
		model    sql.NullString
		user     sql.NullString
		rawOut   sql.NullString
		commands sql.NullString
		issues   sql.NullString
		symbols  sql.NullString
		balance  sql.NullString
		errorStr sql.NullString
		noteStr  sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.TraceID, &rec.StartedAt, &rec.FinishedAt, &provider, &model,
		&rec.Attempts, &rec.SystemLen, &user, &rawOut, &commands, &issues, &symbols,
		&rec.Attempted, &rec.Succeeded, &rec.Failed, &rec.Resolved, &balance, &errorStr, &noteStr); err != nil {
		return rec, err
	}
	rec.ProviderID = provider.String
	rec.Model = model.String
	rec.UserPrompt = user.String
	rec.RawOutput = rawOut.String
	rec.Commands = decodeStringArray(commands.String)
	rec.Issues = decodeStringArray(issues.String)
	rec.Symbols = decodeSymbolBlob(symbols.String)
	rec.Balance = balance.String
	rec.Error = errorStr.String
	rec.Note = noteStr.String
	return rec, nil
}

func encodeJSON(v []string) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeStringArray(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func encodeSymbolBlob(symbols []string) string {
	if len(symbols) == 0 {
		return ""
	}
	seen := make(map[string]struct{})
	var cleaned []string
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		cleaned = append(cleaned, sym)
	}
	if len(cleaned) == 0 {
		return ""
	}
	return "|" + strings.Join(cleaned, "|") + "|"
}

func decodeSymbolBlob(blob string) []string {
	blob = strings.Trim(blob, "|")
	if blob == "" {
		return nil
	}
	parts := strings.Split(blob, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
