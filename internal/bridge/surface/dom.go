package surface

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// installDocument exposes a read-only view of the page's markup.
func (r *Runtime) installDocument(content Content) {
	document := r.vm.NewObject()
	document.Set("title", content.Title)
	document.Set("readyState", "complete")
	document.Set("URL", content.URL)

	doc := content.Document
	document.Set("querySelector", func(selector string) any {
		if doc == nil {
			return nil
		}
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return nil
		}
		return elementProxy(sel)
	})
	document.Set("querySelectorAll", func(selector string) []map[string]any {
		if doc == nil {
			return []map[string]any{}
		}
		return elementProxies(doc.Find(selector))
	})
	document.Set("getElementById", func(id string) any {
		if doc == nil {
			return nil
		}
		var found *goquery.Selection
		doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, _ := s.Attr("id"); v == id {
				found = s
				return false
			}
			return true
		})
		if found == nil {
			return nil
		}
		return elementProxy(found)
	})

	r.vm.Set("document", document)
}

func elementProxies(sel *goquery.Selection) []map[string]any {
	out := make([]map[string]any, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, elementProxy(s))
	})
	return out
}

func elementProxy(sel *goquery.Selection) map[string]any {
	id, _ := sel.Attr("id")
	className, _ := sel.Attr("class")
	return map[string]any{
		"tagName":     strings.ToUpper(goquery.NodeName(sel)),
		"id":          id,
		"className":   className,
		"textContent": sel.Text(),
		"getAttribute": func(name string) any {
			if v, ok := sel.Attr(name); ok {
				return v
			}
			return nil
		},
	}
}
