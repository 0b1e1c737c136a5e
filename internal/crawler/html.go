package crawler

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// PageTitle returns the <title> of body when body looks like an HTML
// document. It is used to explain decode failures.
func PageTitle(body []byte) (string, bool) {
	head := bytes.ToLower(body[:min(len(body), 512)])
	if !bytes.Contains(head, []byte("<html")) && !bytes.Contains(head, []byte("<!doctype html")) {
		return "", false
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var title string
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if visit(c) {
				return true
			}
		}
		return false
	}
	visit(doc)

	if title == "" {
		title = "untitled"
	}
	return title, true
}
