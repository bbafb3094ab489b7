package local

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/mcp-visio/mcpvisio/internal/atomicfile"
	"github.com/mcp-visio/mcpvisio/internal/diagram"
)

const (
	pxPerInch = 96
	ptPerInch = 72
	minPageW  = 8.5
	minPageH  = 11
)

type point struct{ x, y float64 }

// item is a shape reduced to what the renderers draw, in page inches with
// the origin at the bottom left.
type item struct {
	outline []point
	closed  bool
	text    string
	at      point
}

func export(d *Document, format diagram.FixedFormat, path string) error {
	var pages []*Page
	for _, p := range d.pages {
		if !p.background {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return errors.New("document has no foreground pages")
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case diagram.FormatSVG:
		data = renderSVG(pages[0])
	case diagram.FormatPNG, diagram.FormatJPEG:
		data, err = renderRaster(pages[0], format)
	case diagram.FormatPDF:
		data = renderPDF(pages)
	default:
		return fmt.Errorf("unsupported fixed format %d", format)
	}
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

func layout(p *Page) (items []item, w, h float64) {
	w, h = minPageW, minPageH
	for _, s := range p.shapes {
		it := item{text: s.text}
		if s.oneD {
			a, b := s.endpoints()
			it.outline = []point{a, b}
			it.at = point{(a.x + b.x) / 2, (a.y + b.y) / 2}
		} else {
			it.outline = outline(s.geometry, s.x, s.y, s.w, s.h)
			it.closed = true
			it.at = point{s.x, s.y}
		}
		for _, pt := range it.outline {
			w = math.Max(w, pt.x+0.5)
			h = math.Max(h, pt.y+0.5)
		}
		items = append(items, it)
	}
	return items, w, h
}

// endpoints follows glue so a connector tracks shapes moved after gluing.
func (s *Shape) endpoints() (point, point) {
	a := point{s.line[0], s.line[1]}
	b := point{s.line[2], s.line[3]}
	if s.begin != nil {
		if t := s.page.shapeByID(*s.begin); t != nil {
			a.x, a.y = t.Position()
		}
	}
	if s.end != nil {
		if t := s.page.shapeByID(*s.end); t != nil {
			b.x, b.y = t.Position()
		}
	}
	return a, b
}

func outline(geometry string, cx, cy, w, h float64) []point {
	rx, ry := w/2, h/2
	switch geometry {
	case "ellipse":
		return polygon(cx, cy, rx, ry, 48, 0)
	case "triangle":
		return []point{{cx - rx, cy - ry}, {cx + rx, cy - ry}, {cx, cy + ry}}
	case "diamond":
		return []point{{cx, cy - ry}, {cx + rx, cy}, {cx, cy + ry}, {cx - rx, cy}}
	case "pentagon":
		return polygon(cx, cy, rx, ry, 5, math.Pi/2)
	case "hexagon":
		return polygon(cx, cy, rx, ry, 6, 0)
	case "octagon":
		return polygon(cx, cy, rx, ry, 8, math.Pi/8)
	case "star":
		pts := make([]point, 0, 10)
		for i := 0; i < 10; i++ {
			r := 1.0
			if i%2 == 1 {
				r = 0.4
			}
			a := math.Pi/2 + float64(i)*math.Pi/5
			pts = append(pts, point{cx + rx*r*math.Cos(a), cy + ry*r*math.Sin(a)})
		}
		return pts
	}
	return []point{{cx - rx, cy - ry}, {cx + rx, cy - ry}, {cx + rx, cy + ry}, {cx - rx, cy + ry}}
}

func polygon(cx, cy, rx, ry float64, n int, phase float64) []point {
	pts := make([]point, n)
	for i := range pts {
		a := phase + 2*math.Pi*float64(i)/float64(n)
		pts[i] = point{cx + rx*math.Cos(a), cy + ry*math.Sin(a)}
	}
	return pts
}

func renderSVG(p *Page) []byte {
	items, w, h := layout(p)
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%.2fin" height="%.2fin" viewBox="0 0 %.0f %.0f">`+"\n",
		w, h, w*pxPerInch, h*pxPerInch)
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(p.name))
	for _, it := range items {
		coords := make([]string, len(it.outline))
		for i, pt := range it.outline {
			coords[i] = fmt.Sprintf("%.1f,%.1f", pt.x*pxPerInch, (h-pt.y)*pxPerInch)
		}
		tag := "polyline"
		if it.closed {
			tag = "polygon"
		}
		fmt.Fprintf(&b, `<%s points="%s" fill="none" stroke="black"/>`+"\n", tag, strings.Join(coords, " "))
		if it.text != "" {
			fmt.Fprintf(&b, `<text x="%.1f" y="%.1f" text-anchor="middle" font-family="sans-serif" font-size="12">%s</text>`+"\n",
				it.at.x*pxPerInch, (h-it.at.y)*pxPerInch, html.EscapeString(it.text))
		}
	}
	b.WriteString("</svg>\n")
	return []byte(b.String())
}

func renderRaster(p *Page, format diagram.FixedFormat) ([]byte, error) {
	items, w, h := layout(p)
	img := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(w*pxPerInch)), int(math.Ceil(h*pxPerInch))))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	ink := color.RGBA{A: 0xff}
	toPx := func(pt point) (int, int) {
		return int(math.Round(pt.x * pxPerInch)), int(math.Round((h - pt.y) * pxPerInch))
	}
	for _, it := range items {
		n := len(it.outline)
		segs := n - 1
		if it.closed {
			segs = n
		}
		for i := 0; i < segs; i++ {
			x0, y0 := toPx(it.outline[i])
			x1, y1 := toPx(it.outline[(i+1)%n])
			drawLine(img, x0, y0, x1, y1, ink)
		}
	}

	var buf bytes.Buffer
	var err error
	if format == diagram.FormatJPEG {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// renderPDF writes one PDF page per diagram page using the standard
// Helvetica font for labels.
func renderPDF(pages []*Page) []byte {
	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("")
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	var kids []string
	for _, p := range pages {
		items, w, h := layout(p)
		var cs strings.Builder
		cs.WriteString("0.75 w\n")
		for _, it := range items {
			for i, pt := range it.outline {
				op := "l"
				if i == 0 {
					op = "m"
				}
				fmt.Fprintf(&cs, "%.2f %.2f %s\n", pt.x*ptPerInch, pt.y*ptPerInch, op)
			}
			if it.closed {
				cs.WriteString("h S\n")
			} else {
				cs.WriteString("S\n")
			}
			if it.text != "" {
				fmt.Fprintf(&cs, "BT /F1 10 Tf %.2f %.2f Td (%s) Tj ET\n",
					it.at.x*ptPerInch, it.at.y*ptPerInch, pdfEscape(it.text))
			}
		}
		content := add(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", cs.Len(), cs.String()))
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %.0f %.0f] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, w*ptPerInch, h*ptPerInch, font, content))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}
	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, catalog, xref)
	return b.Bytes()
}

func pdfEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`, "\n", " ", "\r", " ")
	return r.Replace(s)
}
