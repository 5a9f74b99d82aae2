package idea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// MaxLength caps the text taken from a file or page.
const MaxLength = 8000

const maxPageSize = 5 << 20 // 5MB

// FromFile reads a product description from a PDF or a plain text file.
func FromFile(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fromPDF(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return clip(normalizeSpace(string(data))), nil
}

func fromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(text)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	out := clip(normalizeSpace(string(b)))
	if out == "" {
		return "", errors.New("pdf contains no extractable text")
	}
	return out, nil
}

// FromURL fetches a landing page and returns its title, meta description
// and visible text.
func FromURL(ctx context.Context, hc *http.Client, rawURL string) (string, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("fetching %s: HTTP %d", rawURL, resp.StatusCode)
	}
	return FromHTML(io.LimitReader(resp.Body, maxPageSize))
}

// FromHTML extracts the description text of an HTML document.
func FromHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var title, description string
	var body strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "svg":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = n.FirstChild.Data
				}
				return
			case "meta":
				if description == "" && isDescription(n) {
					description = attr(n, "content")
				}
			}
		}
		if n.Type == html.TextNode {
			body.WriteString(n.Data)
			body.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var parts []string
	for _, p := range []string{title, description, body.String()} {
		if p = normalizeSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	out := clip(strings.Join(parts, "\n\n"))
	if out == "" {
		return "", errors.New("page contains no text")
	}
	return out, nil
}

func isDescription(n *html.Node) bool {
	name := strings.ToLower(attr(n, "name"))
	prop := strings.ToLower(attr(n, "property"))
	return name == "description" || prop == "og:description"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= MaxLength {
		return s
	}
	return strings.TrimSpace(string(r[:MaxLength]))
}
