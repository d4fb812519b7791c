package scenegraph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
)

// --- msdf-bmfont-xml JSON schema (spec §4.6) ---

type sdfFontJSON struct {
	Pages []string `json:"pages"`
	Chars []struct {
		ID       rune   `json:"id"`
		X, Y     uint16 `json:"x"`
		Width    uint16 `json:"width"`
		Height   uint16 `json:"height"`
		XOffset  int16  `json:"xoffset"`
		YOffset  int16  `json:"yoffset"`
		XAdvance int16  `json:"xadvance"`
		Page     uint16 `json:"page"`
	} `json:"chars"`
	Info struct {
		Size float64 `json:"size"`
	} `json:"info"`
	Common struct {
		LineHeight float64 `json:"lineHeight"`
		Base       float64 `json:"base"`
		ScaleW     uint16  `json:"scaleW"`
		ScaleH     uint16  `json:"scaleH"`
	} `json:"common"`
	Kernings []struct {
		First  rune  `json:"first"`
		Second rune  `json:"second"`
		Amount int16 `json:"amount"`
	} `json:"kernings"`
	DistanceField struct {
		FieldType     string  `json:"fieldType"`
		DistanceRange float64 `json:"distanceRange"`
	} `json:"distanceField"`
	LightningMetrics *struct {
		Ascender    float64 `json:"ascender"`
		Descender   float64 `json:"descender"`
		LineGap     float64 `json:"lineGap"`
		UnitsPerEm  float64 `json:"unitsPerEm"`
	} `json:"lightningMetrics"`
}

type sdfChar struct {
	x, y, width, height    uint16
	xoffset, yoffset       int16
	xadvance               int16
	page                   uint16
}

type sdfKernKey struct{ first, second rune }

// SDFFont is a loaded msdf-bmfont-xml font: design-unit glyph metrics plus
// one or more SDF/MSDF atlas pages. Grounded on text.go's BitmapFont
// (LoadBitmapFont's .fnt text parser), generalized to the JSON schema and
// distance-field metadata spec §4.6 names.
type SDFFont struct {
	Family        string
	Size          float64 // em size the atlas was authored at
	LineHeight    float64
	Base          float64
	ScaleW, ScaleH uint16
	DistanceRange float64
	IsMSDF        bool
	Pages         []*ebiten.Image

	Ascender, Descender, LineGap, UnitsPerEm float64

	chars   map[rune]sdfChar
	kerning map[sdfKernKey]int16

	program *ShaderProgram
}

// LoadSDFFont parses msdf-bmfont-xml JSON data. pages must be supplied by
// the caller in the same order as the JSON's "pages" array (page images are
// loaded through the image decode pool / texture cache, not by this
// function, mirroring LoadAtlas's separation of JSON parsing from image
// loading in atlas.go).
func LoadSDFFont(family string, jsonData []byte, pages []*ebiten.Image) (*SDFFont, error) {
	var doc sdfFontJSON
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("scenegraph: parse sdf font %q: %w", family, err)
	}
	if len(pages) < len(doc.Pages) {
		return nil, fmt.Errorf("scenegraph: sdf font %q needs %d page images, got %d", family, len(doc.Pages), len(pages))
	}

	f := &SDFFont{
		Family:        family,
		Size:          doc.Info.Size,
		LineHeight:    doc.Common.LineHeight,
		Base:          doc.Common.Base,
		ScaleW:        doc.Common.ScaleW,
		ScaleH:        doc.Common.ScaleH,
		DistanceRange: doc.DistanceField.DistanceRange,
		IsMSDF:        strings.EqualFold(doc.DistanceField.FieldType, "msdf"),
		Pages:         pages,
		chars:         make(map[rune]sdfChar, len(doc.Chars)),
		kerning:       make(map[sdfKernKey]int16, len(doc.Kernings)),
		program:       ShaderProgramByKind(shaderKindSDFText),
	}
	if doc.LightningMetrics != nil {
		f.Ascender = doc.LightningMetrics.Ascender
		f.Descender = doc.LightningMetrics.Descender
		f.LineGap = doc.LightningMetrics.LineGap
		f.UnitsPerEm = doc.LightningMetrics.UnitsPerEm
	}
	for _, c := range doc.Chars {
		f.chars[c.ID] = sdfChar{
			x: c.X, y: c.Y, width: c.Width, height: c.Height,
			xoffset: c.XOffset, yoffset: c.YOffset, xadvance: c.XAdvance, page: c.Page,
		}
	}
	for _, k := range doc.Kernings {
		f.kerning[sdfKernKey{k.First, k.Second}] = k.Amount
	}
	return f, nil
}

func (f *SDFFont) glyph(r rune) (sdfChar, bool) {
	c, ok := f.chars[r]
	return c, ok
}

func (f *SDFFont) kern(first, second rune) int16 {
	return f.kerning[sdfKernKey{first, second}]
}

// --- font registry / nodesWaitingForFont (spec §4.6) ---

var (
	sdfFontsByFamily    = map[string]*SDFFont{}
	nodesWaitingForFont = map[string][]*Node{}
)

// RegisterSDFFont installs f under its Family name and relayouts any node
// that requested this family before it finished loading.
func RegisterSDFFont(f *SDFFont) {
	sdfFontsByFamily[f.Family] = f
	waiters := nodesWaitingForFont[f.Family]
	delete(nodesWaitingForFont, f.Family)
	for _, n := range waiters {
		if n.sdfText != nil {
			n.sdfText.font = f
			n.sdfText.layoutDirty = true
			markSubtreeDirtyRTT(n)
		}
	}
}

// --- sdfTextState (Node.sdfText) ---

type sdfGlyphQuad struct {
	verts [4]ebiten.Vertex // top-left, top-right, bottom-left, bottom-right
	page  uint16
}

// sdfLayoutKey caches glyph-quad layout across nodes/frames that share
// identical text+font+wrap parameters (spec §4.6 "layout cache keyed on
// text, fontFamily, fontSize, ... overflowSuffix").
type sdfLayoutKey struct {
	text           string
	fontFamily     string
	fontSize       float64
	fontStyle      string
	wrap           bool
	wrapWidth      float64
	letterSpacing  float64
	maxLines       int
	overflowSuffix string
}

type sdfLayoutResult struct {
	quads          []sdfGlyphQuad
	measuredW      float64
	measuredH      float64
}

var sdfLayoutCache = map[sdfLayoutKey]*sdfLayoutResult{}

// sdfTextState holds the SDF text content, requested font, and cached
// glyph-quad layout for a Node. Grounded on text.go's TextBlock, retargeted
// to design-unit coordinates scaled by fontScale (fontSize/font.Size)
// instead of pre-scaled pixel metrics.
type sdfTextState struct {
	Content        string
	FontFamily     string
	FontSize       float64
	FontStyle      string
	Color          Color
	Wrap           bool
	WrapWidth      float64
	LetterSpacing  float64
	MaxLines       int
	OverflowSuffix string

	font        *SDFFont
	layoutDirty bool
	cached      *sdfLayoutResult
}

// SetSDFText assigns SDF-rendered text content to this node. family is
// resolved against RegisterSDFFont; if not yet loaded, the node is queued
// in nodesWaitingForFont and relayouts automatically once the font arrives.
func (n *Node) SetSDFText(content, family string, size float64) {
	st := n.sdfText
	if st == nil {
		st = &sdfTextState{MaxLines: 0}
		n.sdfText = st
	}
	st.Content = content
	st.FontFamily = family
	st.FontSize = size
	st.Color = ColorWhite
	st.layoutDirty = true

	if f, ok := sdfFontsByFamily[family]; ok {
		st.font = f
	} else {
		st.font = nil
		nodesWaitingForFont[family] = append(nodesWaitingForFont[family], n)
	}
	markSubtreeDirtyRTT(n)
}

// SetSDFWrap configures word-wrap width and truncation for SDF text.
func (n *Node) SetSDFWrap(wrap bool, width float64, maxLines int, overflowSuffix string) {
	if n.sdfText == nil {
		return
	}
	n.sdfText.Wrap = wrap
	n.sdfText.WrapWidth = width
	n.sdfText.MaxLines = maxLines
	n.sdfText.OverflowSuffix = overflowSuffix
	n.sdfText.layoutDirty = true
	markSubtreeDirtyRTT(n)
}

// sdfMeasure returns the design-unit measured width/height of n's current
// SDF text layout, triggering layout if dirty.
func (n *Node) sdfMeasure() (w, h float64) {
	st := n.sdfText
	if st == nil || st.font == nil {
		return 0, 0
	}
	r := st.layout()
	return r.measuredW, r.measuredH
}

// layout recomputes (or fetches from sdfLayoutCache) the glyph-quad layout
// for st, in the font's own design units scaled by fontScale = FontSize /
// font.Size — the font atlas metrics are authored at font.Size and scaled
// up or down per spec §4.6.
func (st *sdfTextState) layout() *sdfLayoutResult {
	if !st.layoutDirty && st.cached != nil {
		return st.cached
	}
	st.layoutDirty = false

	f := st.font
	if f == nil || st.Content == "" {
		st.cached = &sdfLayoutResult{}
		return st.cached
	}

	key := sdfLayoutKey{
		text: st.Content, fontFamily: st.FontFamily, fontSize: st.FontSize,
		fontStyle: st.FontStyle, wrap: st.Wrap, wrapWidth: st.WrapWidth,
		letterSpacing: st.LetterSpacing, maxLines: st.MaxLines, overflowSuffix: st.OverflowSuffix,
	}
	if cached, ok := sdfLayoutCache[key]; ok {
		st.cached = cached
		return cached
	}

	fontScale := 1.0
	if f.Size > 0 {
		fontScale = st.FontSize / f.Size
	}
	lineHeight := f.LineHeight * fontScale

	type placed = struct {
		ch   sdfChar
		x, y float64
	}
	var lines [][]placed
	var curLine []placed
	var cursorX float64
	var prevRune rune
	var hasPrev bool
	var maxW float64

	runes := []rune(st.Content)
	flushLine := func() {
		if cursorX > maxW {
			maxW = cursorX
		}
		lines = append(lines, curLine)
		curLine = nil
		cursorX = 0
		hasPrev = false
	}

	for _, r := range runes {
		if r == '\n' {
			flushLine()
			continue
		}
		g, ok := f.glyph(r)
		if !ok {
			continue
		}
		kern := 0.0
		if hasPrev {
			kern = float64(f.kern(prevRune, r)) * fontScale
		}
		advance := float64(g.xadvance)*fontScale + kern + st.LetterSpacing
		if st.Wrap && st.WrapWidth > 0 && len(curLine) > 0 && cursorX+advance > st.WrapWidth {
			flushLine()
		}
		curLine = append(curLine, placed{ch: g, x: cursorX + kern, y: 0})
		cursorX += advance
		prevRune = r
		hasPrev = true
	}
	if len(curLine) > 0 || len(lines) == 0 {
		if cursorX > maxW {
			maxW = cursorX
		}
		lines = append(lines, curLine)
	}

	if st.MaxLines > 0 && len(lines) > st.MaxLines {
		lines = lines[:st.MaxLines]
		lines[len(lines)-1] = appendOverflowSuffix(lines[len(lines)-1], f, st.OverflowSuffix, fontScale, st.WrapWidth, st.Wrap)
	}

	var quads []sdfGlyphQuad
	for li, line := range lines {
		ly := float64(li) * lineHeight
		for _, p := range line {
			g := p.ch
			pageW, pageH := float64(f.ScaleW), float64(f.ScaleH)
			gx := p.x + float64(g.xoffset)*fontScale
			gy := ly + float64(g.yoffset)*fontScale
			gw := float64(g.width) * fontScale
			gh := float64(g.height) * fontScale
			u0, v0 := float32(g.x)/float32(pageW), float32(g.y)/float32(pageH)
			u1, v1 := float32(g.x+g.width)/float32(pageW), float32(g.y+g.height)/float32(pageH)
			quads = append(quads, sdfGlyphQuad{
				page: g.page,
				verts: [4]ebiten.Vertex{
					{DstX: float32(gx), DstY: float32(gy), SrcX: u0 * float32(pageW), SrcY: v0 * float32(pageH)},
					{DstX: float32(gx + gw), DstY: float32(gy), SrcX: u1 * float32(pageW), SrcY: v0 * float32(pageH)},
					{DstX: float32(gx), DstY: float32(gy + gh), SrcX: u0 * float32(pageW), SrcY: v1 * float32(pageH)},
					{DstX: float32(gx + gw), DstY: float32(gy + gh), SrcX: u1 * float32(pageW), SrcY: v1 * float32(pageH)},
				},
			})
		}
	}

	result := &sdfLayoutResult{quads: quads, measuredW: maxW, measuredH: float64(len(lines)) * lineHeight}
	sdfLayoutCache[key] = result
	st.cached = result
	return result
}

// appendOverflowSuffix trims trailing glyphs from the last visible line
// until overflowSuffix's own glyphs fit within wrapWidth (when wrapping is
// active), then appends the suffix glyphs at the freed-up cursor position,
// per spec §4.6's maxLines truncation rule.
func appendOverflowSuffix(line []struct {
	ch   sdfChar
	x, y float64
}, f *SDFFont, suffix string, fontScale, wrapWidth float64, wrap bool) []struct {
	ch   sdfChar
	x, y float64
} {
	if suffix == "" {
		return line
	}
	suffixRunes := []rune(suffix)

	layoutSuffixAt := func(base float64) ([]struct {
		ch   sdfChar
		x, y float64
	}, float64) {
		glyphs := make([]struct {
			ch   sdfChar
			x, y float64
		}, 0, len(suffixRunes))
		cursor := base
		for _, r := range suffixRunes {
			g, ok := f.glyph(r)
			if !ok {
				continue
			}
			glyphs = append(glyphs, struct {
				ch   sdfChar
				x, y float64
			}{ch: g, x: cursor})
			cursor += float64(g.xadvance) * fontScale
		}
		return glyphs, cursor
	}

	lineEnd := func() float64 {
		if len(line) == 0 {
			return 0
		}
		last := line[len(line)-1]
		return last.x + float64(last.ch.xadvance)*fontScale
	}

	suffixGlyphs, end := layoutSuffixAt(lineEnd())
	if wrap && wrapWidth > 0 {
		for end > wrapWidth && len(line) > 0 {
			line = line[:len(line)-1]
			suffixGlyphs, end = layoutSuffixAt(lineEnd())
		}
	}
	return append(line, suffixGlyphs...)
}

// emitSDFTextCommand appends one CommandMesh RenderCommand per atlas page
// referenced by n's glyph-quad layout. Grounded on text.go's
// emitBitmapTextCommands (per-glyph transform composition, node tint/alpha
// multiplication) but assembling an explicit vertex/index buffer instead of
// one CommandSprite per glyph, since the SDF shader needs a single
// DrawTrianglesShader call per page (spec §4.6).
func emitSDFTextCommand(st *sdfTextState, n *Node, viewWorld [6]float64, commands []RenderCommand, treeOrder *int) []RenderCommand {
	f := st.font
	if f == nil {
		return commands
	}
	r := st.layout()
	if len(r.quads) == 0 {
		return commands
	}

	color := color32{
		R: float32(st.Color.R * n.Color.R),
		G: float32(st.Color.G * n.Color.G),
		B: float32(st.Color.B * n.Color.B),
		A: float32(st.Color.A * n.Color.A * n.worldAlpha),
	}

	byPage := map[uint16][]sdfGlyphQuad{}
	for _, q := range r.quads {
		byPage[q.page] = append(byPage[q.page], q)
	}

	w32 := affine32(viewWorld)
	for page, quads := range byPage {
		if int(page) >= len(f.Pages) {
			continue
		}
		verts := make([]ebiten.Vertex, 0, len(quads)*4)
		inds := make([]uint16, 0, len(quads)*6)
		for _, q := range quads {
			base := uint16(len(verts))
			for _, v := range q.verts {
				dx := w32[0]*v.DstX + w32[2]*v.DstY + w32[4]
				dy := w32[1]*v.DstX + w32[3]*v.DstY + w32[5]
				verts = append(verts, ebiten.Vertex{
					DstX: dx, DstY: dy,
					SrcX: v.SrcX, SrcY: v.SrcY,
					ColorR: color.R, ColorG: color.G, ColorB: color.B, ColorA: color.A,
				})
			}
			inds = append(inds, base+0, base+1, base+2, base+1, base+3, base+2)
		}
		*treeOrder++
		commands = append(commands, RenderCommand{
			Type:            CommandMesh,
			meshVerts:       verts,
			meshInds:        inds,
			meshImage:       f.Pages[page],
			BlendMode:       n.BlendMode,
			RenderLayer:     n.RenderLayer,
			GlobalOrder:     n.GlobalOrder,
			treeOrder:       *treeOrder,
			shaderProgram:   f.program,
			shaderDistRange: float32(f.DistanceRange),
			shaderIsMSDF:    boolToFloat32(f.IsMSDF),
		})
	}
	return commands
}

func boolToFloat32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
