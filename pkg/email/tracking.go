package email

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TrackingURLs builds the open pixel and click redirect URLs for one send.
type TrackingURLs struct {
	BaseURL string
}

func (t TrackingURLs) Open(trackingID string) string {
	return fmt.Sprintf("%s/api/track/open/%s", strings.TrimRight(t.BaseURL, "/"), trackingID)
}

func (t TrackingURLs) Click(trackingID, target string) string {
	return fmt.Sprintf("%s/api/track/click/%s?url=%s", strings.TrimRight(t.BaseURL, "/"), trackingID, url.QueryEscape(target))
}

// InjectTracking rewrites http(s) links to the click endpoint and appends an
// open pixel to the body. Links whose href starts with one of skip are left
// untouched.
func InjectTracking(document string, urls TrackingURLs, trackingID string, skip ...string) (string, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return "", fmt.Errorf("parse email html: %w", err)
	}

	var body *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Body:
				body = n
			case atom.A:
				rewriteHref(n, urls, trackingID, skip)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if body != nil {
		body.AppendChild(&html.Node{
			Type:     html.ElementNode,
			Data:     "img",
			DataAtom: atom.Img,
			Attr: []html.Attribute{
				{Key: "src", Val: urls.Open(trackingID)},
				{Key: "width", Val: "1"},
				{Key: "height", Val: "1"},
				{Key: "alt", Val: ""},
				{Key: "style", Val: "display:none"},
			},
		})
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render email html: %w", err)
	}
	return buf.String(), nil
}

func rewriteHref(n *html.Node, urls TrackingURLs, trackingID string, skip []string) {
	for i, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		href := strings.TrimSpace(attr.Val)
		lower := strings.ToLower(href)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return
		}
		for _, prefix := range skip {
			if prefix != "" && strings.HasPrefix(href, prefix) {
				return
			}
		}
		n.Attr[i].Val = urls.Click(trackingID, href)
		return
	}
}
