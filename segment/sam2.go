package segment

import (
	"image"

	"github.com/getcharzp/go-segtrack/sam2"
)

// SAM2Opener 返回基于 sam2.Engine 的 Opener
func SAM2Opener(cfg sam2.Config) Opener {
	return func() (Model, error) {
		engine, err := sam2.NewEngine(cfg)
		if err != nil {
			return nil, err
		}
		return &sam2Model{engine: engine}, nil
	}
}

type sam2Model struct {
	engine *sam2.Engine
}

func (m *sam2Model) Embed(img image.Image) (Embedding, error) {
	ctx, err := m.engine.EncodeImage(img)
	if err != nil {
		return nil, err
	}
	return &sam2Embedding{ctx: ctx}, nil
}

func (m *sam2Model) Close() error {
	return m.engine.Destroy()
}

type sam2Embedding struct {
	ctx *sam2.ImageContext
}

func (e *sam2Embedding) Candidates(pt image.Point) ([]Candidate, error) {
	results, err := e.ctx.DecodeCandidates([]sam2.Point{
		{X: float32(pt.X), Y: float32(pt.Y), Label: sam2.LabelForeground},
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{
			Mask:  MaskFromBytes(r.Mask, r.Width, r.Height),
			Score: r.Score,
		}
	}
	return candidates, nil
}

func (e *sam2Embedding) Release() {
	e.ctx.Destroy()
}
