// Package normalize maps backend-native parse results onto the canonical
// block model: unit-square bounding boxes, a closed set of block types, and
// stable (page, emission-order) sorting. All backend-specific knowledge about
// result shapes lives here and in the adapter raw types; nothing downstream
// sees a native schema.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"docbench/internal/domain"
	"docbench/internal/port"
	"docbench/internal/provider/layoutparse"
	"docbench/internal/provider/ocrbatch"
	"docbench/internal/provider/syncocr"
	"docbench/internal/provider/vision"
)

// layoutTypes is the closed label table for layout-parser items.
var layoutTypes = map[string]domain.BlockType{
	"text":      domain.BlockText,
	"heading":   domain.BlockTitle,
	"table":     domain.BlockTable,
	"list":      domain.BlockList,
	"list_item": domain.BlockList,
	"image":     domain.BlockFigure,
	"figure":    domain.BlockFigure,
	"code":      domain.BlockCode,
	"equation":  domain.BlockEquation,
	"header":    domain.BlockHeader,
	"footer":    domain.BlockFooter,
}

// syncTypes is the closed label table for synchronous OCR elements.
var syncTypes = map[string]domain.BlockType{
	"paragraph": domain.BlockText,
	"caption":   domain.BlockText,
	"heading1":  domain.BlockTitle,
	"heading2":  domain.BlockTitle,
	"heading3":  domain.BlockTitle,
	"table":     domain.BlockTable,
	"figure":    domain.BlockFigure,
	"chart":     domain.BlockFigure,
	"list":      domain.BlockList,
	"header":    domain.BlockHeader,
	"footer":    domain.BlockFooter,
	"footnote":  domain.BlockFooter,
	"equation":  domain.BlockEquation,
	"code":      domain.BlockCode,
}

// noiseCategories marks backend labels for boilerplate that is excluded from
// the canonical block list entirely.
var noiseCategories = map[string]bool{
	"noise":       true,
	"boilerplate": true,
}

// Outputs converts a backend-native result into normalized parse outputs.
// Degradation (missing dimensions, out-of-range boxes) never fails the run.
func Outputs(raw port.RawResult) *domain.ParseOutputs {
	switch r := raw.(type) {
	case *layoutparse.Result:
		return layoutOutputs(r)
	case *ocrbatch.Result:
		return ocrBatchOutputs(r)
	case *syncocr.Result:
		return syncOutputs(r)
	case *vision.Result:
		return &domain.ParseOutputs{Markdown: r.Markdown}
	default:
		return &domain.ParseOutputs{}
	}
}

func layoutOutputs(r *layoutparse.Result) *domain.ParseOutputs {
	out := &domain.ParseOutputs{Markdown: r.Markdown}

	var mds []string
	for _, page := range r.Pages {
		pageIdx := page.Page - 1
		if pageIdx < 0 {
			pageIdx = 0
		}
		w, h := layoutPageDims(page)
		out.PageDimensions = append(out.PageDimensions, domain.PageDimensions{Width: w, Height: h})

		for i := range page.Items {
			flattenLayoutItem(&page.Items[i], pageIdx, &out.Blocks)
		}
		if page.Md != "" {
			mds = append(mds, page.Md)
		}
	}
	if out.Markdown == "" {
		out.Markdown = strings.Join(mds, "\n\n")
	}
	out.Blocks = Canonicalize(out.Blocks)
	return out
}

// layoutPageDims resolves page dimensions for a layout page: explicit page
// metadata first, then the full-page screenshot image the backend emits among
// the page assets, then a degraded 1x1 page.
func layoutPageDims(page layoutparse.Page) (float64, float64) {
	if page.Width > 0 && page.Height > 0 {
		return page.Width, page.Height
	}
	for _, img := range page.Images {
		if img.Type == "full_page_screenshot" && img.OriginalWidth > 0 && img.OriginalHeight > 0 {
			return img.OriginalWidth, img.OriginalHeight
		}
	}
	return 1, 1
}

// flattenLayoutItem walks the item tree depth-first. Every node with a
// recognized type contributes one block; traversal always continues into
// children since they carry independent geometry.
func flattenLayoutItem(item *layoutparse.Item, pageIdx int, blocks *[]domain.CanonicalBlock) {
	blockType, recognized := layoutTypes[item.Type]
	if !recognized && item.Type != "" {
		blockType = domain.BlockUnknown
		recognized = true
	}
	if recognized && !noiseCategories[item.Type] {
		content := item.Md
		if content == "" {
			content = item.Value
		}
		block := domain.CanonicalBlock{
			ID:        fmt.Sprintf("p%d-b%d", pageIdx, len(*blocks)),
			Type:      blockType,
			Content:   content,
			PageIndex: pageIdx,
		}
		if item.BBox != nil {
			// Layout parsers report unit-fraction boxes already.
			block.BBox = FromUnit(item.BBox.X, item.BBox.Y, item.BBox.W, item.BBox.H)
		}
		*blocks = append(*blocks, block)
	}
	for i := range item.Children {
		flattenLayoutItem(&item.Children[i], pageIdx, blocks)
	}
}

func ocrBatchOutputs(r *ocrbatch.Result) *domain.ParseOutputs {
	out := &domain.ParseOutputs{}

	var mds []string
	for _, page := range r.Pages {
		w := float64(page.Dimensions.Width)
		h := float64(page.Dimensions.Height)
		out.PageDimensions = append(out.PageDimensions, domain.PageDimensions{Width: w, Height: h})
		if page.Markdown != "" {
			mds = append(mds, page.Markdown)
		}

		for _, img := range page.Images {
			block := domain.CanonicalBlock{
				ID:        img.ID,
				Type:      domain.BlockFigure,
				Content:   img.ID,
				PageIndex: page.Index,
			}
			block.BBox = FromCorners(
				float64(img.TopLeftX), float64(img.TopLeftY),
				float64(img.BottomRightX), float64(img.BottomRightY),
				w, h,
			)
			out.Blocks = append(out.Blocks, block)
		}
	}
	out.Markdown = strings.Join(mds, "\n\n")
	out.Blocks = Canonicalize(out.Blocks)
	return out
}

func syncOutputs(r *syncocr.Result) *domain.ParseOutputs {
	out := &domain.ParseOutputs{
		Markdown: r.Content.Markdown,
		HTML:     r.Content.HTML,
	}

	dims := syncPageDims(r)
	for _, pm := range r.Metadata.Pages {
		out.PageDimensions = append(out.PageDimensions,
			domain.PageDimensions{Width: pm.Width, Height: pm.Height})
	}

	for _, el := range r.Elements {
		if noiseCategories[el.Category] {
			continue
		}
		blockType, ok := syncTypes[el.Category]
		if !ok {
			blockType = domain.BlockUnknown
		}
		pageIdx := el.Page - 1
		if pageIdx < 0 {
			pageIdx = 0
		}

		content := el.Content.Markdown
		if content == "" {
			content = el.Content.Text
		}
		block := domain.CanonicalBlock{
			ID:        fmt.Sprintf("el-%d", el.ID),
			Type:      blockType,
			Content:   content,
			PageIndex: pageIdx,
		}
		if len(el.Coordinates) > 0 {
			xs := make([]float64, len(el.Coordinates))
			ys := make([]float64, len(el.Coordinates))
			for i, pt := range el.Coordinates {
				xs[i] = pt.X
				ys[i] = pt.Y
			}
			w, h := dims[el.Page][0], dims[el.Page][1]
			block.BBox = FromPolygon(xs, ys, w, h)
		}
		out.Blocks = append(out.Blocks, block)
	}
	out.Blocks = Canonicalize(out.Blocks)
	return out
}

// syncPageDims resolves page dimensions per page number, in order: explicit
// per-page metadata, a page-level bounding region reported among the elements
// (category "page" spanning the sheet), then a degraded 1x1 page.
func syncPageDims(r *syncocr.Result) map[int][2]float64 {
	dims := make(map[int][2]float64)
	for _, pm := range r.Metadata.Pages {
		if pm.Width > 0 && pm.Height > 0 {
			dims[pm.Page] = [2]float64{pm.Width, pm.Height}
		}
	}
	for _, el := range r.Elements {
		if el.Category != "page" {
			continue
		}
		if _, ok := dims[el.Page]; ok {
			continue
		}
		var maxX, maxY float64
		for _, pt := range el.Coordinates {
			if pt.X > maxX {
				maxX = pt.X
			}
			if pt.Y > maxY {
				maxY = pt.Y
			}
		}
		if maxX > 0 && maxY > 0 {
			dims[el.Page] = [2]float64{maxX, maxY}
		}
	}
	return dims
}

// Canonicalize is the final pass over a block list: it re-checks every
// bounding box against the unit-square invariant and applies the stable
// (pageIndex, emission order) sort. It is idempotent: canonical input comes
// back unchanged.
func Canonicalize(blocks []domain.CanonicalBlock) []domain.CanonicalBlock {
	for i := range blocks {
		if blocks[i].BBox != nil {
			blocks[i].BBox = checked(blocks[i].BBox)
		}
		if blocks[i].Type == "" {
			blocks[i].Type = domain.BlockUnknown
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].PageIndex < blocks[j].PageIndex
	})
	return blocks
}
