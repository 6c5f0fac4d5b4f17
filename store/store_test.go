package store

import (
	"context"
	"image"
	"os"
	"testing"

	"github.com/getcharzp/go-segtrack/segment"
	"github.com/getcharzp/go-segtrack/track"
)

func TestLostAt(t *testing.T) {
	if v := lostAt(track.Report{State: track.StateCompleted, LostAt: -1}); v != nil {
		t.Fatalf("完成的会话不应有 lost_at: %v", *v)
	}
	v := lostAt(track.Report{State: track.StateLost, LostAt: 3})
	if v == nil || *v != 3 {
		t.Fatalf("lost_at 错误: %v", v)
	}
}

// TestStoreIntegration 需要 SEGTRACK_TEST_DATABASE_URL 指向一个可写的 PostgreSQL
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("short 模式跳过集成测试")
	}
	url := os.Getenv("SEGTRACK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("未设置 SEGTRACK_TEST_DATABASE_URL")
	}

	ctx := context.Background()
	s, err := New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close(ctx)

	id, err := s.BeginSession(ctx, "/input/clip", "/output/run1", 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		r := track.FrameResult{
			Index:      i,
			Path:       "/input/clip/frame.png",
			Prompt:     image.Pt(10, 20),
			Prediction: segment.Prediction{Score: 0.8, PixelCount: 100 - i},
		}
		if err := s.RecordFrame(ctx, id, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.FinishSession(ctx, id, track.Report{State: track.StateLost, Total: 3, Processed: 2, LostAt: 1}); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.ListSessions(ctx, 50)
	if err != nil {
		t.Fatal(err)
	}
	var found *Session
	for i := range sessions {
		if sessions[i].ID == id {
			found = &sessions[i]
		}
	}
	if found == nil {
		t.Fatalf("会话 %d 未找到", id)
	}
	if found.State != "lost" || found.Processed != 2 || found.LostAt == nil || *found.LostAt != 1 || found.FinishedAt == nil {
		t.Fatalf("会话内容错误: %+v", found)
	}
}
