package slicer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const (
	initialFrameBuffer = 1 << 20
	maxFrameBuffer     = 64 << 20
)

// SplitJPEG bufio.SplitFunc, 按 SOI/EOI 标记切出完整的 JPEG
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}

// ffmpegSource 通过 ffmpeg image2pipe 输出的 MJPEG 流读取帧
type ffmpegSource struct {
	info    VideoInfo
	pipe    *io.PipeReader
	scanner *bufio.Scanner
	cancel  context.CancelFunc
	done    chan error
}

// OpenFFmpeg 用 ffmpeg 解码视频, 需要 PATH 中有 ffmpeg 和 ffprobe
func OpenFFmpeg(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "%s: %v", path, err)
	}
	probe, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "ffprobe %s: %v", path, err)
	}
	info, err := parseProbe(probe)
	if err != nil {
		return nil, errors.Wrapf(ErrOpenFailed, "%s: %v", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &ffmpegSource{
		info:    info,
		pipe:    pr,
		scanner: bufio.NewScanner(pr),
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	s.scanner.Buffer(make([]byte, initialFrameBuffer), maxFrameBuffer)
	s.scanner.Split(SplitJPEG)

	stream := ffmpeg.Input(path).Output("pipe:", ffmpeg.KwArgs{
		"format": "image2pipe",
		"vcodec": "mjpeg",
		"q:v":    2,
	})
	stream.Context = ctx
	go func() {
		err := stream.WithOutput(pw).Run()
		pw.CloseWithError(err)
		s.done <- err
	}()
	return s, nil
}

func (s *ffmpegSource) Info() VideoInfo {
	return s.info
}

func (s *ffmpegSource) Next() (image.Image, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "ffmpeg 解码失败")
		}
		return nil, io.EOF
	}
	img, err := jpeg.Decode(bytes.NewReader(s.scanner.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "解析 ffmpeg 输出帧失败")
	}
	return img, nil
}

// Close 停止 ffmpeg 进程并等待退出
func (s *ffmpegSource) Close() error {
	s.cancel()
	_ = s.pipe.Close()
	<-s.done
	return nil
}

// probeOutput ffprobe -show_streams 的 JSON 输出
type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		NbFrames   string `json:"nb_frames"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func parseProbe(data string) (VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return VideoInfo{}, errors.Wrap(err, "解析 ffprobe 输出失败")
	}
	for _, st := range out.Streams {
		if st.CodecType != "video" {
			continue
		}
		info := VideoInfo{FPS: parseRate(st.RFrameRate)}
		// nb_frames 可能为 "N/A"
		if n, err := strconv.Atoi(st.NbFrames); err == nil && n > 0 {
			info.FrameCount = n
		}
		return info, nil
	}
	return VideoInfo{}, errors.New("没有视频流")
}

// parseRate 解析 "30000/1001" 形式的帧率
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
