package presentation

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	relTypeSlide      = "/slide"
	relTypeNotesSlide = "/notesSlide"
	relTypeImage      = "/image"
)

// rasterExtensions are the picture formats kept as image items.
var rasterExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true,
	"bmp": true, "tif": true, "tiff": true, "webp": true,
}

type relationships struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type slideXML struct {
	CSld struct {
		SpTree struct {
			Shapes []shapeXML `xml:",any"`
		} `xml:"spTree"`
	} `xml:"cSld"`
}

type shapeXML struct {
	XMLName     xml.Name
	Placeholder struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	Offset struct {
		X int64 `xml:"x,attr"`
		Y int64 `xml:"y,attr"`
	} `xml:"spPr>xfrm>off"`
	FrameOffset struct {
		X int64 `xml:"x,attr"`
		Y int64 `xml:"y,attr"`
	} `xml:"xfrm>off"`
	Paragraphs []paragraphXML `xml:"txBody>p"`
	Blip       struct {
		Embed string `xml:"embed,attr"`
	} `xml:"blipFill>blip"`
	TableRows []struct {
		Cells []struct {
			Paragraphs []paragraphXML `xml:"txBody>p"`
		} `xml:"tc"`
	} `xml:"graphic>graphicData>tbl>tr"`
	Children []shapeXML `xml:",any"`
}

type paragraphXML struct {
	Runs []struct {
		Text string `xml:"t"`
	} `xml:"r"`
	Fields []struct {
		Text string `xml:"t"`
	} `xml:"fld"`
}

func (p paragraphXML) text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	for _, f := range p.Fields {
		b.WriteString(f.Text)
	}
	return b.String()
}

func paragraphsText(ps []paragraphXML) string {
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		if t := strings.TrimSpace(p.text()); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}

// element is a positioned text or picture found on a slide.
type element struct {
	x, y   int64
	text   string
	target string
}

// ParsePPTXFile parses the .pptx file at path.
func ParsePPTXFile(filePath string) (*Presentation, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open presentation: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat presentation: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return ParsePPTX(f, info.Size(), name)
}

// ParsePPTX reads an Office Open XML slide deck. Each slide yields its speaker
// notes first, then text frames, tables and raster pictures ordered
// top-to-bottom and left-to-right.
func ParsePPTX(r io.ReaderAt, size int64, name string) (*Presentation, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pptx archive: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	slidePaths, err := slideOrder(files)
	if err != nil {
		return nil, err
	}

	p := New(name)
	for _, sp := range slidePaths {
		slide := p.AddSlide()
		if err := parseSlide(files, sp, slide); err != nil {
			return nil, fmt.Errorf("parse %s: %w", sp, err)
		}
	}
	return p, nil
}

func slideOrder(files map[string]*zip.File) ([]string, error) {
	var pres presentationXML
	if err := decodeXML(files, "ppt/presentation.xml", &pres); err != nil {
		return nil, fmt.Errorf("read presentation.xml: %w", err)
	}
	rels, err := readRels(files, "ppt/presentation.xml")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, id := range pres.SlideIDs {
		if target, ok := rels[id.RID]; ok {
			out = append(out, target)
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	// No slide list: fall back to numeric file order.
	for n := range files {
		if strings.HasPrefix(n, "ppt/slides/slide") && strings.HasSuffix(n, ".xml") {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return slideIndex(out[i]) < slideIndex(out[j]) })
	return out, nil
}

func slideIndex(name string) int {
	base := strings.TrimSuffix(path.Base(name), ".xml")
	n, _ := strconv.Atoi(strings.TrimPrefix(base, "slide"))
	return n
}

func parseSlide(files map[string]*zip.File, slidePath string, slide *Slide) error {
	var sx slideXML
	if err := decodeXML(files, slidePath, &sx); err != nil {
		return err
	}
	rels, err := readRelsTyped(files, slidePath)
	if err != nil {
		return err
	}

	for _, r := range rels {
		if strings.HasSuffix(r.typ, relTypeNotesSlide) {
			if notes := readNotes(files, r.target); notes != "" {
				slide.AddText(notes)
			}
		}
	}

	var elems []element
	collectElements(sx.CSld.SpTree.Shapes, &elems)
	sort.SliceStable(elems, func(i, j int) bool {
		if elems[i].y != elems[j].y {
			return elems[i].y < elems[j].y
		}
		return elems[i].x < elems[j].x
	})

	images := make(map[string]string, len(rels))
	for id, r := range rels {
		if strings.HasSuffix(r.typ, relTypeImage) {
			images[id] = r.target
		}
	}

	for _, e := range elems {
		if e.target == "" {
			slide.AddText(CleanText(e.text))
			continue
		}
		target, ok := images[e.target]
		if !ok {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(target), "."))
		if !rasterExtensions[ext] {
			continue
		}
		data, err := readFile(files, target)
		if err != nil {
			return fmt.Errorf("read image %s: %w", target, err)
		}
		slide.AddImage(data, ext)
	}
	return nil
}

func collectElements(shapes []shapeXML, out *[]element) {
	for _, s := range shapes {
		switch s.XMLName.Local {
		case "sp":
			if t := paragraphsText(s.Paragraphs); t != "" {
				*out = append(*out, element{x: s.Offset.X, y: s.Offset.Y, text: t})
			}
		case "pic":
			if s.Blip.Embed != "" {
				*out = append(*out, element{x: s.Offset.X, y: s.Offset.Y, target: s.Blip.Embed})
			}
		case "graphicFrame":
			var rows []string
			for _, row := range s.TableRows {
				cells := make([]string, 0, len(row.Cells))
				for _, c := range row.Cells {
					cells = append(cells, strings.ReplaceAll(paragraphsText(c.Paragraphs), "\n", " "))
				}
				if line := strings.Join(cells, " | "); strings.Trim(line, " |") != "" {
					rows = append(rows, line)
				}
			}
			if len(rows) > 0 {
				*out = append(*out, element{x: s.FrameOffset.X, y: s.FrameOffset.Y, text: strings.Join(rows, "\n")})
			}
		case "grpSp":
			collectElements(s.Children, out)
		}
	}
}

func readNotes(files map[string]*zip.File, notesPath string) string {
	var nx slideXML
	if err := decodeXML(files, notesPath, &nx); err != nil {
		return ""
	}
	var parts []string
	for _, s := range nx.CSld.SpTree.Shapes {
		if s.XMLName.Local == "sp" && s.Placeholder.Type == "body" {
			if t := paragraphsText(s.Paragraphs); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return CleanText(strings.Join(parts, "\n"))
}

type rel struct {
	typ    string
	target string
}

func relsPath(partPath string) string {
	dir, file := path.Split(partPath)
	return path.Join(dir, "_rels", file+".rels")
}

func resolveTarget(partPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(partPath), target))
}

func readRelsTyped(files map[string]*zip.File, partPath string) (map[string]rel, error) {
	rp := relsPath(partPath)
	if _, ok := files[rp]; !ok {
		return map[string]rel{}, nil
	}
	var rs relationships
	if err := decodeXML(files, rp, &rs); err != nil {
		return nil, fmt.Errorf("read %s: %w", rp, err)
	}
	out := make(map[string]rel, len(rs.Rels))
	for _, r := range rs.Rels {
		out[r.ID] = rel{typ: r.Type, target: resolveTarget(partPath, r.Target)}
	}
	return out, nil
}

func readRels(files map[string]*zip.File, partPath string) (map[string]string, error) {
	typed, err := readRelsTyped(files, partPath)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(typed))
	for id, r := range typed {
		if strings.HasSuffix(r.typ, relTypeSlide) {
			out[id] = r.target
		}
	}
	return out, nil
}

func readFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, os.ErrNotExist)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	data, err := readFile(files, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}
