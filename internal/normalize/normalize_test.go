package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbench/internal/domain"
	"docbench/internal/provider/layoutparse"
	"docbench/internal/provider/ocrbatch"
	"docbench/internal/provider/syncocr"
	"docbench/internal/provider/vision"
)

func TestOutputs_LayoutFlattensNestedItems(t *testing.T) {
	raw := &layoutparse.Result{
		Provider: "llamaparse",
		Markdown: "# Doc",
		Pages: []layoutparse.Page{
			{
				Page:   1,
				Width:  612,
				Height: 792,
				Items: []layoutparse.Item{
					{
						Type: "heading",
						Md:   "# Title",
						BBox: &layoutparse.BBox{X: 0.1, Y: 0.05, W: 0.8, H: 0.1},
						Children: []layoutparse.Item{
							{
								Type: "text",
								Md:   "intro paragraph",
								BBox: &layoutparse.BBox{X: 0.1, Y: 0.2, W: 0.8, H: 0.1},
							},
							{
								Type: "table",
								Md:   "| a | b |",
							},
						},
					},
					{Type: "sidebar", Md: "marginal note"},
				},
			},
		},
	}

	out := Outputs(raw)
	require.NotNil(t, out)
	assert.Equal(t, "# Doc", out.Markdown)
	require.Len(t, out.Blocks, 4)

	// Depth-first: parent before children, then the next sibling.
	assert.Equal(t, domain.BlockTitle, out.Blocks[0].Type)
	assert.Equal(t, domain.BlockText, out.Blocks[1].Type)
	assert.Equal(t, domain.BlockTable, out.Blocks[2].Type)
	// Unrecognized labels map to unknown rather than being dropped.
	assert.Equal(t, domain.BlockUnknown, out.Blocks[3].Type)
	assert.Equal(t, "marginal note", out.Blocks[3].Content)

	// Child geometry is independent of the parent's.
	require.NotNil(t, out.Blocks[1].BBox)
	assert.InDelta(t, 0.2, out.Blocks[1].BBox.Y, 1e-9)
	// Items without a box keep the block, lose the box.
	assert.Nil(t, out.Blocks[2].BBox)

	require.Len(t, out.PageDimensions, 1)
	assert.Equal(t, 612.0, out.PageDimensions[0].Width)
}

func TestOutputs_LayoutPageDimsFallBackToScreenshot(t *testing.T) {
	raw := &layoutparse.Result{
		Provider: "llamaparse",
		Pages: []layoutparse.Page{
			{
				Page: 1,
				Md:   "page one",
				Images: []layoutparse.Image{
					{Name: "shot", Type: "full_page_screenshot", OriginalWidth: 1224, OriginalHeight: 1584},
				},
			},
			{Page: 2, Md: "page two"},
		},
	}

	out := Outputs(raw)
	require.Len(t, out.PageDimensions, 2)
	assert.Equal(t, 1224.0, out.PageDimensions[0].Width)
	// No metadata and no screenshot: degraded 1x1 page.
	assert.Equal(t, 1.0, out.PageDimensions[1].Width)
	assert.Equal(t, 1.0, out.PageDimensions[1].Height)

	// Document markdown absent: assembled from per-page markdown.
	assert.Equal(t, "page one\n\npage two", out.Markdown)
}

func TestOutputs_OCRBatchImagesBecomeFigures(t *testing.T) {
	raw := &ocrbatch.Result{
		Provider: "mistral-ocr",
		Pages: []ocrbatch.Page{
			{
				Index:      0,
				Markdown:   "![img-0.jpeg](img-0.jpeg)",
				Dimensions: ocrbatch.Dimensions{Width: 1000, Height: 500},
				Images: []ocrbatch.Image{
					{ID: "img-0.jpeg", TopLeftX: 100, TopLeftY: 50, BottomRightX: 300, BottomRightY: 150},
				},
			},
		},
		UsageInfo: ocrbatch.UsageInfo{PagesProcessed: 1},
	}

	out := Outputs(raw)
	require.Len(t, out.Blocks, 1)
	block := out.Blocks[0]
	assert.Equal(t, domain.BlockFigure, block.Type)
	assert.Equal(t, "img-0.jpeg", block.ID)
	require.NotNil(t, block.BBox)
	assert.InDelta(t, 0.1, block.BBox.X, 1e-9)
	assert.InDelta(t, 0.2, block.BBox.W, 1e-9)
	assert.Equal(t, "![img-0.jpeg](img-0.jpeg)", out.Markdown)
}

func TestOutputs_SyncPolygonsAndNoise(t *testing.T) {
	raw := &syncocr.Result{
		Provider: "upstage",
		Content:  syncocr.Content{Markdown: "# Doc", HTML: "<h1>Doc</h1>"},
		Metadata: syncocr.Metadata{Pages: []syncocr.PageMeta{{Page: 1, Width: 1000, Height: 500}}},
		Elements: []syncocr.Element{
			{
				ID:       0,
				Category: "heading1",
				Content:  syncocr.Content{Markdown: "# Doc"},
				Page:     1,
				Coordinates: []syncocr.Point{
					{X: 100, Y: 50}, {X: 300, Y: 50}, {X: 300, Y: 150}, {X: 100, Y: 150},
				},
			},
			{ID: 1, Category: "noise", Content: syncocr.Content{Text: "scanner artifact"}, Page: 1},
			{ID: 2, Category: "mystery", Content: syncocr.Content{Text: "???"}, Page: 1},
		},
	}

	out := Outputs(raw)
	assert.Equal(t, "# Doc", out.Markdown)
	assert.Equal(t, "<h1>Doc</h1>", out.HTML)

	// Noise is excluded entirely; unrecognized categories survive as unknown.
	require.Len(t, out.Blocks, 2)
	assert.Equal(t, "el-0", out.Blocks[0].ID)
	assert.Equal(t, domain.BlockTitle, out.Blocks[0].Type)
	require.NotNil(t, out.Blocks[0].BBox)
	assert.InDelta(t, 0.1, out.Blocks[0].BBox.X, 1e-9)
	assert.InDelta(t, 0.2, out.Blocks[0].BBox.W, 1e-9)
	assert.Equal(t, domain.BlockUnknown, out.Blocks[1].Type)

	require.Len(t, out.PageDimensions, 1)
	assert.Equal(t, 1000.0, out.PageDimensions[0].Width)
}

func TestOutputs_SyncPageDimsFallBackToPageElement(t *testing.T) {
	raw := &syncocr.Result{
		Provider: "upstage",
		Elements: []syncocr.Element{
			{
				ID:       0,
				Category: "page",
				Page:     1,
				Coordinates: []syncocr.Point{
					{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 500}, {X: 0, Y: 500},
				},
			},
			{
				ID:       1,
				Category: "paragraph",
				Content:  syncocr.Content{Text: "hello"},
				Page:     1,
				Coordinates: []syncocr.Point{
					{X: 100, Y: 50}, {X: 300, Y: 50}, {X: 300, Y: 150}, {X: 100, Y: 150},
				},
			},
		},
	}

	out := Outputs(raw)
	var para *domain.CanonicalBlock
	for i := range out.Blocks {
		if out.Blocks[i].ID == "el-1" {
			para = &out.Blocks[i]
		}
	}
	require.NotNil(t, para)
	require.NotNil(t, para.BBox)
	assert.InDelta(t, 0.1, para.BBox.X, 1e-9)
	assert.InDelta(t, 0.1, para.BBox.Y, 1e-9)
}

func TestOutputs_VisionIsMarkdownOnly(t *testing.T) {
	out := Outputs(&vision.Result{Provider: "gpt-4o", Markdown: "# Transcribed"})
	assert.Equal(t, "# Transcribed", out.Markdown)
	assert.Empty(t, out.Blocks)
	assert.Empty(t, out.PageDimensions)
}

func TestCanonicalize(t *testing.T) {
	blocks := []domain.CanonicalBlock{
		{ID: "b", PageIndex: 1, Type: domain.BlockText},
		{ID: "a", PageIndex: 0, Type: "", BBox: &domain.UnitBBox{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}},
		{ID: "c", PageIndex: 0, Type: domain.BlockTable, BBox: &domain.UnitBBox{X: 0.9, Y: 0.9, W: 0.5, H: 0.5}},
	}

	got := Canonicalize(blocks)
	require.Len(t, got, 3)
	// Stable sort by page; emission order preserved within a page.
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, "b", got[2].ID)
	// Empty types become unknown, out-of-range boxes are dropped.
	assert.Equal(t, domain.BlockUnknown, got[0].Type)
	assert.Nil(t, got[1].BBox)

	// Idempotent: a second pass changes nothing.
	again := Canonicalize(append([]domain.CanonicalBlock(nil), got...))
	assert.Equal(t, got, again)
}
