package segment

import (
	"image"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrNotInitialized SetImage 在 Initialize 之前调用
	ErrNotInitialized = errors.New("分割模型未初始化, 请先调用 Initialize")
	// ErrImageNotSet PredictFromPoint 在 SetImage 之前调用
	ErrImageNotSet = errors.New("尚未设置图片, 请先调用 SetImage")
)

// Candidate 单个候选 Mask 及其分数
type Candidate struct {
	Mask  Mask
	Score float32
}

// Embedding 一张图片的特征, 可多次用于点提示解码
type Embedding interface {
	// Candidates 以单个前景点为提示, 返回 multimask 输出的全部候选
	Candidates(pt image.Point) ([]Candidate, error)
	Release()
}

// Model 预训练的可提示分割模型
type Model interface {
	Embed(img image.Image) (Embedding, error)
	Close() error
}

// Opener 创建模型, 由 Adapter.Initialize 调用一次
type Opener func() (Model, error)

// Prediction 一次点提示预测的结果
type Prediction struct {
	Mask       Mask
	Score      float32
	PixelCount int
}

// Adapter 包装分割模型, 保证 Initialize -> SetImage -> PredictFromPoint 的调用顺序
type Adapter struct {
	open   Opener
	model  Model
	emb    Embedding
	logger *zap.SugaredLogger
}

// NewAdapter 创建未初始化的 Adapter
func NewAdapter(open Opener, logger *zap.SugaredLogger) *Adapter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Adapter{open: open, logger: logger}
}

// Initialize 创建底层模型, 已存在时直接返回
func (a *Adapter) Initialize() error {
	if a.model != nil {
		return nil
	}
	a.logger.Info("初始化分割模型")
	model, err := a.open()
	if err != nil {
		return errors.Wrap(err, "初始化分割模型失败")
	}
	a.model = model
	a.logger.Info("分割模型已就绪")
	return nil
}

// Initialized 模型是否已创建
func (a *Adapter) Initialized() bool {
	return a.model != nil
}

// SetImage 计算图片特征, 每一帧都需要重新调用
func (a *Adapter) SetImage(img image.Image) error {
	if a.model == nil {
		return ErrNotInitialized
	}
	a.releaseEmbedding()

	a.logger.Debugw("计算图片特征", "size", img.Bounds().Size())
	emb, err := a.model.Embed(img)
	if err != nil {
		return errors.Wrap(err, "计算图片特征失败")
	}
	a.emb = emb
	return nil
}

// PredictFromPoint 单个前景点提示, 返回分数最高的候选
//
// 分数相同时取索引最小的候选
func (a *Adapter) PredictFromPoint(pt image.Point) (Prediction, error) {
	if a.emb == nil {
		return Prediction{}, ErrImageNotSet
	}
	candidates, err := a.emb.Candidates(pt)
	if err != nil {
		return Prediction{}, errors.Wrapf(err, "点 (%d, %d) 预测失败", pt.X, pt.Y)
	}
	if len(candidates) == 0 {
		return Prediction{}, errors.New("模型没有返回候选 Mask")
	}

	best := BestCandidate(candidates)
	return Prediction{
		Mask:       best.Mask,
		Score:      best.Score,
		PixelCount: best.Mask.Count(),
	}, nil
}

// BestCandidate 分数最高的候选, 相同分数取第一个
func BestCandidate(candidates []Candidate) Candidate {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[best].Score {
			best = i
		}
	}
	return candidates[best]
}

func (a *Adapter) releaseEmbedding() {
	if a.emb != nil {
		a.emb.Release()
		a.emb = nil
	}
}

// Close 释放特征和模型
func (a *Adapter) Close() error {
	a.releaseEmbedding()
	if a.model == nil {
		return nil
	}
	err := a.model.Close()
	a.model = nil
	return errors.Wrap(err, "关闭分割模型失败")
}
