package sam2

import (
	"fmt"
	"image"
	"runtime"

	segtrack "github.com/getcharzp/go-segtrack"
	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
)

// Engine 持有 ONNX Session，负责创建 ImageContext
type Engine struct {
	encoderSession *ort.DynamicAdvancedSession
	decoderSession *ort.DynamicAdvancedSession
	onnx           *segtrack.OnnxConfig
	config         Config
}

// NewEngine 初始化 sam2 引擎
func NewEngine(cfg Config) (*Engine, error) {
	onnxConfig := new(segtrack.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}

	encInputs := []string{"pixel_values"}
	encOutputs := []string{"image_embeddings.0", "image_embeddings.1", "image_embeddings.2"}
	encSession, err := ort.NewDynamicAdvancedSession(cfg.EncodeModelPath, encInputs, encOutputs, onnxConfig.SessionOptions)
	if err != nil {
		onnxConfig.Release()
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	decInputs := []string{
		"input_points", "input_labels", "input_boxes",
		"image_embeddings.0", "image_embeddings.1", "image_embeddings.2",
	}
	decOutputs := []string{"iou_scores", "pred_masks", "object_score_logits"}
	decSession, err := ort.NewDynamicAdvancedSession(cfg.DecodeModelPath, decInputs, decOutputs, onnxConfig.SessionOptions)
	if err != nil {
		encSession.Destroy()
		onnxConfig.Release()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	return &Engine{
		encoderSession: encSession,
		decoderSession: decSession,
		onnx:           onnxConfig,
		config:         cfg,
	}, nil
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	var err error
	if e.encoderSession != nil {
		if dErr := e.encoderSession.Destroy(); dErr != nil {
			err = multierr.Append(err, fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", dErr))
		}
		e.encoderSession = nil
	}
	if e.decoderSession != nil {
		if dErr := e.decoderSession.Destroy(); dErr != nil {
			err = multierr.Append(err, fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", dErr))
		}
		e.decoderSession = nil
	}
	if e.onnx != nil {
		e.onnx.Release()
	}
	return err
}

// ImageContext 包含特定图像的特征缓存和参数
type ImageContext struct {
	engine          *Engine
	imageEmbeddings []ort.Value

	origW, origH int
	scale        float32
	newW, newH   int
	isDestroyed  bool
}

// EncodeImage 图像特征提取
func (e *Engine) EncodeImage(img image.Image) (*ImageContext, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW == 0 || origH == 0 {
		return nil, fmt.Errorf("图片尺寸无效: %dx%d", origW, origH)
	}

	scale := float32(inputSize) / float32(max(origW, origH))
	newW := int(float32(origW) * scale)
	newH := int(float32(origH) * scale)

	resizedImg := imageutil.Resize(img, newW, newH)
	tensorData := normalizeAndPad(resizedImg, inputSize, inputSize)

	inputShape := ort.NewShape(1, 3, int64(inputSize), int64(inputSize))
	inputTensor, err := ort.NewTensor(inputShape, tensorData)
	if err != nil {
		return nil, fmt.Errorf("创建图片 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 3)
	if err := e.encoderSession.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("encoder 推理失败: %w", err)
	}

	ctx := &ImageContext{
		engine:          e,
		imageEmbeddings: outputs,
		origW:           origW,
		origH:           origH,
		scale:           scale,
		newW:            newW,
		newH:            newH,
	}

	// 设置 Finalizer 以防用户忘记 Destroy
	runtime.SetFinalizer(ctx, func(c *ImageContext) { c.Destroy() })

	return ctx, nil
}

// Destroy 释放图像特征缓存
func (ctx *ImageContext) Destroy() {
	if ctx.isDestroyed {
		return
	}
	for _, v := range ctx.imageEmbeddings {
		if v != nil {
			v.Destroy()
		}
	}
	ctx.imageEmbeddings = nil
	ctx.isDestroyed = true
}

// Size 原图尺寸
func (ctx *ImageContext) Size() (int, int) {
	return ctx.origW, ctx.origH
}

// Result Mask 预测结果
type Result struct {
	Mask   []uint8 // 0 or 255
	Score  float32
	Width  int
	Height int
}

// decoderOutput 解码器的原始输出
type decoderOutput struct {
	scores   []float32
	logits   []float32
	maskDim  int // 低分辨率 Mask 边长 (256)
	numMasks int
}

func (out decoderOutput) maskLogits(idx int) []float32 {
	pixelsPerMask := out.maskDim * out.maskDim
	start := idx * pixelsPerMask
	return out.logits[start : start+pixelsPerMask]
}

// runDecoder 执行 Mask 解码, 返回所有候选 Mask 的分数和 logits
func (ctx *ImageContext) runDecoder(points []Point) (*decoderOutput, error) {
	if ctx.isDestroyed {
		return nil, fmt.Errorf("图片特征已销毁")
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("至少需要一个提示点")
	}

	// 坐标转换到 1024 输入尺度
	coords := make([]float32, 0, len(points)*2)
	labels := make([]int64, 0, len(points))
	for _, pt := range points {
		coords = append(coords, pt.X*ctx.scale, pt.Y*ctx.scale)
		labels = append(labels, int64(pt.Label))
	}
	numPoints := int64(len(points))

	tPoints, err := ort.NewTensor(ort.NewShape(1, 1, numPoints, 2), coords)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Points Tensor 失败: %w", err)
	}
	defer tPoints.Destroy()

	tLabels, err := ort.NewTensor(ort.NewShape(1, 1, numPoints), labels)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Labels Tensor 失败: %w", err)
	}
	defer tLabels.Destroy()

	// box 通过 point 控制
	var emptyFloat []float32
	tBoxes, err := ort.NewTensor(ort.NewShape(1, 0, 4), emptyFloat)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Boxes Tensor 失败: %w", err)
	}
	defer tBoxes.Destroy()

	inputs := []ort.Value{
		tPoints,
		tLabels,
		tBoxes,
		ctx.imageEmbeddings[0],
		ctx.imageEmbeddings[1],
		ctx.imageEmbeddings[2],
	}
	outputs := make([]ort.Value, 3)
	if err := ctx.engine.decoderSession.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("decoder 推理失败: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	scoreTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("iou_scores 输出类型错误")
	}
	maskTensor, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("pred_masks 输出类型错误")
	}

	// pred_masks: [1, 1, N, 256, 256]
	shape := maskTensor.GetShape()
	maskDim := int(shape[len(shape)-1])

	// 输出张量在 defer 中销毁, 这里复制数据
	out := &decoderOutput{
		scores:  append([]float32(nil), scoreTensor.GetData()...),
		logits:  append([]float32(nil), maskTensor.GetData()...),
		maskDim: maskDim,
	}
	out.numMasks = len(out.scores)
	if out.numMasks == 0 {
		return nil, fmt.Errorf("decoder 未返回候选 Mask")
	}
	if len(out.logits) < out.numMasks*maskDim*maskDim {
		return nil, fmt.Errorf("pred_masks 尺寸与 iou_scores 不匹配")
	}
	return out, nil
}

func (ctx *ImageContext) upscale(logits []float32, maskDim int) []uint8 {
	validMaskW := ctx.newW / maskDownscale
	validMaskH := ctx.newH / maskDownscale
	return upscaleMaskLogits(logits, maskDim, max(validMaskW, 1), max(validMaskH, 1), ctx.origW, ctx.origH)
}

// DecodeCandidates Mask解码并返回全部候选结果 (multimask 输出)
func (ctx *ImageContext) DecodeCandidates(points []Point) ([]Result, error) {
	out, err := ctx.runDecoder(points)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, out.numMasks)
	for i := 0; i < out.numMasks; i++ {
		results = append(results, Result{
			Mask:   ctx.upscale(out.maskLogits(i), out.maskDim),
			Score:  out.scores[i],
			Width:  ctx.origW,
			Height: ctx.origH,
		})
	}
	return results, nil
}

// DecodeRaw Mask解码并返回分数最高的结果
func (ctx *ImageContext) DecodeRaw(points []Point) (*Result, error) {
	out, err := ctx.runDecoder(points)
	if err != nil {
		return nil, err
	}

	bestIdx := 0
	for i := 1; i < out.numMasks; i++ {
		if out.scores[i] > out.scores[bestIdx] {
			bestIdx = i
		}
	}

	return &Result{
		Mask:   ctx.upscale(out.maskLogits(bestIdx), out.maskDim),
		Score:  out.scores[bestIdx],
		Width:  ctx.origW,
		Height: ctx.origH,
	}, nil
}

// Decode Mask解码并返回图片
func (ctx *ImageContext) Decode(points []Point) (image.Image, float32, error) {
	result, err := ctx.DecodeRaw(points)
	if err != nil {
		return nil, 0, err
	}

	img := image.NewGray(image.Rect(0, 0, result.Width, result.Height))
	copy(img.Pix, result.Mask)
	return img, result.Score, nil
}
