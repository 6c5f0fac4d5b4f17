// Package config 运行配置, 可从 JSON 文件加载并由命令行参数覆盖
package config

import (
	"encoding/json"
	"os"
	"strings"

	segtrack "github.com/getcharzp/go-segtrack"
	"github.com/getcharzp/go-segtrack/sam2"
	"github.com/pkg/errors"
)

// 视频解码后端
const (
	DecoderGoCV   = "gocv"
	DecoderFFmpeg = "ffmpeg"
)

// Config 运行配置
type Config struct {
	// 目录
	InputDir  string `json:"input_dir"`  // 单张图片和帧目录的根目录
	OutputDir string `json:"output_dir"` // 跟踪结果的根目录
	VideosDir string `json:"videos_dir"` // 待拆帧的视频目录
	FramesDir string `json:"frames_dir"` // 拆帧输出目录

	// 模型
	OnnxRuntimeLibPath string `json:"onnxruntime_lib_path"`
	EncodeModelPath    string `json:"encode_model_path"`
	DecodeModelPath    string `json:"decode_model_path"`
	UseCuda            bool   `json:"use_cuda"`
	NumThreads         int    `json:"num_threads"`

	// 显示
	FontPath string `json:"font_path"` // 为空使用内置字体
	Headless bool   `json:"headless"`  // 不打开窗口, 预览写入文件
	Decoder  string `json:"decoder"`   // gocv 或 ffmpeg

	DatabaseURL string `json:"database_url"` // 为空不记录会话
	LogLevel    string `json:"log_level"`
}

// DefaultConfig 默认配置, 目录与容器内的挂载点一致
func DefaultConfig() *Config {
	s := sam2.DefaultConfig()
	return &Config{
		InputDir:           "/input",
		OutputDir:          "/output",
		VideosDir:          "/app/videos",
		FramesDir:          "/app/frames",
		OnnxRuntimeLibPath: s.OnnxRuntimeLibPath,
		EncodeModelPath:    s.EncodeModelPath,
		DecodeModelPath:    s.DecodeModelPath,
		Decoder:            DecoderGoCV,
		LogLevel:           "info",
	}
}

// Validate 规范化取值, 无法修正的返回错误
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.InputDir == "" {
		c.InputDir = def.InputDir
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.VideosDir == "" {
		c.VideosDir = def.VideosDir
	}
	if c.FramesDir == "" {
		c.FramesDir = def.FramesDir
	}
	if c.OnnxRuntimeLibPath == "" {
		c.OnnxRuntimeLibPath = segtrack.DefaultLibraryPath()
	}
	if c.NumThreads < 0 {
		c.NumThreads = 0
	}
	c.Decoder = strings.ToLower(strings.TrimSpace(c.Decoder))
	if c.Decoder == "" {
		c.Decoder = DecoderGoCV
	}
	if c.Decoder != DecoderGoCV && c.Decoder != DecoderFFmpeg {
		return errors.Errorf("未知的解码后端 %q, 可选 gocv 或 ffmpeg", c.Decoder)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// SAM2 转换为 sam2 引擎配置
func (c *Config) SAM2() sam2.Config {
	return sam2.Config{
		OnnxRuntimeLibPath: c.OnnxRuntimeLibPath,
		EncodeModelPath:    c.EncodeModelPath,
		DecodeModelPath:    c.DecodeModelPath,
		UseCuda:            c.UseCuda,
		NumThreads:         c.NumThreads,
	}
}

// Load 读取 JSON 配置, 文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "打开配置文件 %s 失败", path)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return cfg, errors.Wrapf(err, "解析配置文件 %s 失败", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save 以缩进 JSON 写入
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "创建配置文件 %s 失败", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
