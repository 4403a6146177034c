package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/lyh543/ip-traffic-monitor-cli/internal/history"
)

// Store 把每个周期的采样记录写进 SQLite，供事后按 IP 回查。
type Store struct {
	db  *sql.DB
	ins *sql.Stmt
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "./ip_traffic.sqlite"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败：%w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	ddl := `
CREATE TABLE IF NOT EXISTS traffic_samples (
	timestamp    TIMESTAMP,
	ip           TEXT,
	tx_bytes     INTEGER,
	rx_bytes     INTEGER,
	tx_packets   INTEGER,
	rx_packets   INTEGER,
	pid          INTEGER,
	process_name TEXT
);
CREATE INDEX IF NOT EXISTS idx_samples_ip ON traffic_samples(ip);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON traffic_samples(timestamp);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("建表失败：%w", err)
	}
	stmt, err := s.db.Prepare(`
INSERT INTO traffic_samples (
	timestamp, ip, tx_bytes, rx_bytes, tx_packets, rx_packets, pid, process_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return fmt.Errorf("准备插入语句失败：%w", err)
	}
	s.ins = stmt
	return nil
}

// Insert 在一个事务里写入一个周期的全部采样记录。
func (s *Store) Insert(ctx context.Context, samples []history.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败：%w", err)
	}
	stmt := tx.StmtContext(ctx, s.ins)
	for i := range samples {
		r := &samples[i]
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp,
			r.IP,
			int64(r.TxBytes),
			int64(r.RxBytes),
			int64(r.TxPackets),
			int64(r.RxPackets),
			r.PID,
			r.ProcessName,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("插入失败：%w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败：%w", err)
	}
	return nil
}

func (s *Store) QueryByIP(ctx context.Context, ip string, limit int) ([]history.Sample, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT
	timestamp, ip, tx_bytes, rx_bytes, tx_packets, rx_packets, pid, process_name
FROM traffic_samples
WHERE ip = ?
ORDER BY timestamp DESC
LIMIT ?;
`, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("查询失败：%w", err)
	}
	defer rows.Close()

	out := make([]history.Sample, 0, 64)
	for rows.Next() {
		var r history.Sample
		var tx, rx, txp, rxp int64
		if err := rows.Scan(
			&r.Timestamp,
			&r.IP,
			&tx,
			&rx,
			&txp,
			&rxp,
			&r.PID,
			&r.ProcessName,
		); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		r.TxBytes = uint64(tx)
		r.RxBytes = uint64(rx)
		r.TxPackets = uint64(txp)
		r.RxPackets = uint64(rxp)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	var firstErr error
	if s.ins != nil {
		if err := s.ins.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
