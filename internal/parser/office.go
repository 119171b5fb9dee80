package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// OOXML (docx/pptx) documents are zip archives of XML parts. Neither
// format has a grounded third-party reader in this codebase's
// dependency pack, so both are read directly against the standard
// library's archive/zip and encoding/xml — the same two packages the
// PDF and XLSX paths would otherwise need anyway for anything beyond
// plain text.

// wordBody mirrors just enough of word/document.xml to pull out the
// text runs of the body's top-level paragraphs, ignoring formatting.
// Paragraphs inside tables, runs nested in other elements (such as
// hyperlinks), and headers are not read.
type wordBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text []struct {
				Value string `xml:",chardata"`
			} `xml:"t"`
		} `xml:"r"`
	} `xml:"body>p"`
}

// parseDocx extracts paragraph text from word/document.xml.
func parseDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	part, err := findZipFile(&zr.Reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	data, err := readZipFile(part)
	if err != nil {
		return "", err
	}

	var doc wordBody
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	var lines []string
	for _, p := range doc.Paragraphs {
		var b strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Value)
			}
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// slideShapes mirrors the text frames in ppt/slides/slideN.xml.
type slideShapes struct {
	Shapes []struct {
		TextBody struct {
			Paragraphs []struct {
				Runs []struct {
					Text string `xml:"t"`
				} `xml:"r"`
			} `xml:"p"`
		} `xml:"txBody"`
	} `xml:"cSld>spTree>sp"`
}

// parsePptx extracts text frame paragraphs from every slide, in slide
// file order.
func parsePptx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	var slideFiles []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slideFiles = append(slideFiles, f)
		}
	}
	sortSlidesByNumber(slideFiles)

	var lines []string
	for _, f := range slideFiles {
		data, err := readZipFile(f)
		if err != nil {
			return "", err
		}
		var slide slideShapes
		if err := xml.Unmarshal(data, &slide); err != nil {
			continue
		}
		for _, shape := range slide.Shapes {
			for _, p := range shape.TextBody.Paragraphs {
				var b strings.Builder
				for _, r := range p.Runs {
					b.WriteString(r.Text)
				}
				if line := strings.TrimSpace(b.String()); line != "" {
					lines = append(lines, line)
				}
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func findZipFile(zr *zip.Reader, name string) (*zip.File, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// sortSlidesByNumber orders slideN.xml entries numerically (slide2
// before slide10), matching presentation reading order rather than
// zip-archive order.
func sortSlidesByNumber(files []*zip.File) {
	slideNum := func(name string) int {
		name = strings.TrimPrefix(name, "ppt/slides/slide")
		name = strings.TrimSuffix(name, ".xml")
		n := 0
		for _, c := range name {
			if c < '0' || c > '9' {
				return 1 << 30
			}
			n = n*10 + int(c-'0')
		}
		return n
	}
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && slideNum(files[j].Name) < slideNum(files[j-1].Name); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}
