package segtrack

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxConfig ONNX Runtime 会话配置
type OnnxConfig struct {
	SessionOptions *ort.SessionOptions

	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	// 可选参数
	UseCuda    bool // (可选) 是否启用 CUDA
	NumThreads int  // (可选) ONNX 线程数, 默认由CPU核心数决定
}

var (
	envErr  error
	envOnce sync.Once
)

// New 初始化 ONNX 环境并创建会话选项
//
// 环境在进程内只初始化一次, 之后的调用只创建新的 SessionOptions
func (cfg *OnnxConfig) New() error {
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("OnnxRuntimeLibPath 不能为空")
	}
	if _, err := os.Stat(cfg.OnnxRuntimeLibPath); err != nil {
		return fmt.Errorf("找不到 ONNX Runtime 动态库 %s: %w", cfg.OnnxRuntimeLibPath, err)
	}
	envOnce.Do(func() {
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLibPath)
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", envErr)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("创建 SessionOptions 失败: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			options.Destroy()
			return err
		}
	}

	if cfg.UseCuda {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return fmt.Errorf("创建 CUDAProviderOptions 失败: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return fmt.Errorf("添加 CUDA 执行提供者失败: %w", err)
		}
	}
	cfg.SessionOptions = options

	return nil
}

// Release 释放会话选项
func (cfg *OnnxConfig) Release() {
	if cfg.SessionOptions != nil {
		cfg.SessionOptions.Destroy()
		cfg.SessionOptions = nil
	}
}

// DefaultLibraryPath 根据运行时环境判断加载哪个库文件
func DefaultLibraryPath() string {
	baseDir := "./lib/"
	libName := "onnxruntime"

	if runtime.GOOS == "windows" {
		return baseDir + libName + ".dll"
	}

	var ext string
	switch runtime.GOOS {
	case "darwin":
		ext = "dylib"
	case "linux":
		ext = "so"
	default:
		return baseDir + libName + "_amd64.so"
	}

	// ./lib/onnxruntime_amd64.so, ./lib/onnxruntime_arm64.dylib ...
	return fmt.Sprintf("%s%s_%s.%s", baseDir, libName, runtime.GOARCH, ext)
}
