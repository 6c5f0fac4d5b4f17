// Package store 把跟踪会话和逐帧结果记录到 PostgreSQL
package store

import (
	"context"
	"time"

	"github.com/getcharzp/go-segtrack/track"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Store PostgreSQL 连接
type Store struct {
	conn *pgx.Conn
}

// Session 一次跟踪会话的汇总
type Session struct {
	ID          int64
	InputDir    string
	OutputDir   string
	TotalFrames int
	Processed   int
	State       string
	LostAt      *int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// New 连接数据库并初始化表结构
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库失败")
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, errors.Wrap(err, "初始化数据库表失败")
	}
	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS tracking_sessions (
			id BIGSERIAL PRIMARY KEY,
			input_dir TEXT NOT NULL,
			output_dir TEXT NOT NULL,
			total_frames INT NOT NULL,
			processed INT NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT 'awaiting_first_prompt',
			lost_at INT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS tracked_frames (
			id BIGSERIAL PRIMARY KEY,
			session_id BIGINT NOT NULL REFERENCES tracking_sessions(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			frame_path TEXT NOT NULL,
			prompt_x INT NOT NULL,
			prompt_y INT NOT NULL,
			score REAL NOT NULL,
			pixels INT NOT NULL,
			UNIQUE (session_id, frame_index)
		);
		CREATE INDEX IF NOT EXISTS tracked_frames_session_id_idx ON tracked_frames (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close 关闭连接
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// BeginSession 新建会话, 返回会话 ID
func (s *Store) BeginSession(ctx context.Context, inputDir, outputDir string, totalFrames int) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO tracking_sessions (input_dir, output_dir, total_frames)
		VALUES ($1, $2, $3)
		RETURNING id
	`, inputDir, outputDir, totalFrames).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "创建跟踪会话失败")
	}
	return id, nil
}

// RecordFrame 写入一帧的结果, 重复写入同一帧时覆盖
func (s *Store) RecordFrame(ctx context.Context, sessionID int64, r track.FrameResult) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO tracked_frames (session_id, frame_index, frame_path, prompt_x, prompt_y, score, pixels)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, frame_index) DO UPDATE
		SET frame_path = EXCLUDED.frame_path, prompt_x = EXCLUDED.prompt_x, prompt_y = EXCLUDED.prompt_y,
			score = EXCLUDED.score, pixels = EXCLUDED.pixels
	`, sessionID, r.Index, r.Path, r.Prompt.X, r.Prompt.Y, r.Prediction.Score, r.Prediction.PixelCount)
	if err != nil {
		return errors.Wrapf(err, "记录会话 %d 第 %d 帧失败", sessionID, r.Index)
	}
	return nil
}

// FinishSession 写入会话的最终状态
func (s *Store) FinishSession(ctx context.Context, sessionID int64, rep track.Report) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE tracking_sessions
		SET state = $2, processed = $3, lost_at = $4, finished_at = NOW()
		WHERE id = $1
	`, sessionID, rep.State.String(), rep.Processed, lostAt(rep))
	if err != nil {
		return errors.Wrapf(err, "更新会话 %d 失败", sessionID)
	}
	return nil
}

// ListSessions 按开始时间倒序列出会话
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, input_dir, output_dir, total_frames, processed, state, lost_at, started_at, finished_at
		FROM tracking_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "查询会话失败")
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.InputDir, &ss.OutputDir, &ss.TotalFrames, &ss.Processed,
			&ss.State, &ss.LostAt, &ss.StartedAt, &ss.FinishedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// lostAt 未丢失时写入 NULL
func lostAt(rep track.Report) *int {
	if rep.State != track.StateLost || rep.LostAt < 0 {
		return nil
	}
	v := rep.LostAt
	return &v
}
