package callwatch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxFrameDepth bounds how many nested framesets are searched for a frame.
const maxFrameDepth = 3

func resolve(doc *goquery.Document, ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	if doc.Url == nil {
		return parsed.String(), nil
	}
	return doc.Url.ResolveReference(parsed).String(), nil
}

func frameSelector(name string) string {
	return fmt.Sprintf(`frame[name="%s"], iframe[name="%s"]`, name, name)
}

// openFrame loads the document of the frame called name. Frames nested in
// child framesets are searched too, outer frames first.
func openFrame(ctx context.Context, b Browser, doc *goquery.Document, name string) (*goquery.Document, error) {
	return openFrameDepth(ctx, b, doc, name, maxFrameDepth)
}

func openFrameDepth(ctx context.Context, b Browser, doc *goquery.Document, name string, depth int) (*goquery.Document, error) {
	src, ok := doc.Find(frameSelector(name)).First().Attr("src")
	if ok && src != "" {
		link, err := resolve(doc, src)
		if err != nil {
			return nil, fmt.Errorf("frame %q src: %w", name, err)
		}
		return b.Open(ctx, link)
	}

	if depth > 1 {
		children := doc.Find("frame[src], iframe[src]")
		for i := 0; i < children.Length(); i++ {
			link, err := resolve(doc, children.Eq(i).AttrOr("src", ""))
			if err != nil {
				continue
			}
			child, err := b.Open(ctx, link)
			if err != nil {
				continue
			}
			found, err := openFrameDepth(ctx, b, child, name, depth-1)
			if err == nil {
				return found, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: frame %q", ErrElementNotFound, name)
}

// isFrameset reports whether doc is a frameset page rather than a regular
// document.
func isFrameset(doc *goquery.Document) bool {
	return doc.Find("frameset, frame").Length() > 0
}

// optionValue returns the value of the option of the named select whose
// visible text is text.
func optionValue(doc *goquery.Document, selectName, text string) (string, bool) {
	var value string
	var found bool
	doc.Find(fmt.Sprintf(`select[name="%s"] option`, selectName)).EachWithBreak(func(_ int, opt *goquery.Selection) bool {
		if strings.TrimSpace(opt.Text()) != text {
			return true
		}
		value = opt.AttrOr("value", text)
		found = true
		return false
	})
	return value, found
}
