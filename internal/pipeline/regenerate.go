package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

// regenerate rebuilds the working image from the source at the current
// resize and crop state. Previous derived images are released first.
func (p *Pipeline) regenerate() error {
	p.release()
	b := p.b

	work, err := b.Duplicate(p.source)
	if err != nil {
		return fmt.Errorf("duplicate source: %w", err)
	}
	p.working = work

	layer, err := b.MergeVisibleLayers(work)
	if err != nil {
		p.release()
		return fmt.Errorf("merge visible layers: %w", err)
	}
	for _, l := range b.Layers(work) {
		if l == layer {
			continue
		}
		if err := b.RemoveLayer(work, l); err != nil {
			p.release()
			return fmt.Errorf("remove layer %d: %w", l.ID(), err)
		}
	}
	if err := b.ResizeLayerToImage(work, layer); err != nil {
		p.release()
		return fmt.Errorf("resize layer: %w", err)
	}
	if err := b.Scale(work, p.resize.Width, p.resize.Height); err != nil {
		p.release()
		return fmt.Errorf("scale to %s: %w", p.resize, err)
	}
	p.workingLayer = layer
	p.background = b.Rasterize(layer)

	p.settleCrop()
	if p.crop.Width != p.resize.Width || p.crop.Height != p.resize.Height {
		c := p.crop
		if err := b.Crop(work, c.Width, c.Height, c.X, c.Y); err != nil {
			p.release()
			return fmt.Errorf("crop %v: %w", c.Rectangle(), err)
		}
	}

	// Indexed sources keep an indexed companion for palette reuse. Merge
	// rather than flatten so transparency survives.
	if b.IsIndexed(layer) {
		p.regenerateIndexed()
	}

	if !b.IsRGB(layer) {
		if err := b.ConvertRGB(work); err != nil {
			p.release()
			return fmt.Errorf("convert to rgb: %w", err)
		}
	}

	p.metrics.Regenerated()
	p.logger.Debug("regenerated",
		zap.Stringer("resize", p.resize),
		zap.Int("crop_x", p.crop.X),
		zap.Int("crop_y", p.crop.Y),
		zap.Stringer("crop", p.crop.Size()),
		zap.Bool("indexed", p.indexed != nil))
	return nil
}

// regenerateIndexed failures only cost the indexed companion.
func (p *Pipeline) regenerateIndexed() {
	b := p.b
	dup, err := b.Duplicate(p.working)
	if err != nil {
		p.logger.Warn("indexed duplicate failed", zap.Error(err))
		return
	}
	layer, err := b.MergeVisibleLayers(dup)
	if err != nil {
		b.Delete(dup)
		p.logger.Warn("indexed merge failed", zap.Error(err))
		return
	}
	p.indexed = dup
	p.indexedLayer = layer
}

func (p *Pipeline) release() {
	if p.working != nil {
		p.b.Delete(p.working)
		p.working = nil
		p.workingLayer = nil
	}
	if p.indexed != nil {
		p.b.Delete(p.indexed)
		p.indexed = nil
		p.indexedLayer = nil
	}
	p.background = nil
}
