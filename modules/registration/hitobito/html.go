package hitobito

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/pkg/errors"
)

// formPage is a parsed Rails form page.
type formPage struct {
	doc *goquery.Document
}

func parseFormPage(body string) (*formPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "hitobito: parse form page")
	}
	return &formPage{doc: doc}, nil
}

// form picks the form posting to action, falling back to the first form that
// carries an authenticity token.
func (p *formPage) form(action string) *goquery.Selection {
	target := actionPath(action)
	var found *goquery.Selection
	p.doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if a, ok := s.Attr("action"); ok && target != "" && actionPath(a) == target {
			found = s
			return false
		}
		return true
	})
	if found != nil {
		return found
	}
	withToken := p.doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(`input[name="authenticity_token"]`).Length() > 0
	})
	if withToken.Length() > 0 {
		return withToken.First()
	}
	return p.doc.Find("form").First()
}

func (p *formPage) authenticityToken(action string) string {
	v, _ := p.form(action).Find(`input[name="authenticity_token"]`).First().Attr("value")
	if v == "" {
		v, _ = p.doc.Find(`input[name="authenticity_token"]`).First().Attr("value")
	}
	return v
}

func (p *formPage) csrfMetaToken() string {
	v, _ := p.doc.Find(`meta[name="csrf-token"]`).First().Attr("content")
	return v
}

// fields returns the values the browser would submit for the target form:
// named inputs (checked boxes only), textareas and selected options. Buttons,
// file inputs and the Rails control fields are skipped.
func (p *formPage) fields(action string) url.Values {
	out := url.Values{}
	f := p.form(action)

	f.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if skipField(name) {
			return
		}
		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := s.Attr("checked"); !checked {
				return
			}
			out.Add(name, s.AttrOr("value", "on"))
		default:
			out.Add(name, s.AttrOr("value", ""))
		}
	})

	f.Find("textarea[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if skipField(name) {
			return
		}
		out.Add(name, strings.TrimPrefix(s.Text(), "\n"))
	})

	f.Find("select[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		if skipField(name) {
			return
		}
		selected := s.Find("option[selected]")
		if selected.Length() == 0 {
			if _, multiple := s.Attr("multiple"); multiple {
				return
			}
			selected = s.Find("option").First()
		}
		selected.Each(func(_ int, o *goquery.Selection) {
			v, ok := o.Attr("value")
			if !ok {
				v = strings.TrimSpace(o.Text())
			}
			out.Add(name, v)
		})
	})
	return out
}

func skipField(name string) bool {
	return name == "" || name == "authenticity_token" || name == "_method" || name == "button"
}

func actionPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return strings.TrimSuffix(u.Path, "/")
}

const invalidFeedbackXPath = `//*[contains(concat(' ', normalize-space(@class), ' '), ' invalid-feedback ')]`

// validationErrors collects the messages Rails renders under invalid inputs.
func validationErrors(body string) []string {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range htmlquery.Find(doc, invalidFeedbackXPath) {
		if msg := collapseSpace(htmlquery.InnerText(n)); msg != "" {
			out = append(out, msg)
		}
	}
	return out
}

var approvalNotice = regexp.MustCompile(`(?i)(freigabe|genehmigung|approval|approve|validation en attente|approvazione)`)

const flashXPath = `//*[contains(concat(' ', normalize-space(@class), ' '), ' alert ') or @id='flash']`

// pendingApproval detects the flash notice the registry shows when a role
// request was parked for approval. The notice links the approving group.
func pendingApproval(body string, base *url.URL) (*ApprovalRequiredError, bool) {
	doc, err := htmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, false
	}
	for _, n := range htmlquery.Find(doc, flashXPath) {
		if !approvalNotice.MatchString(htmlquery.InnerText(n)) {
			continue
		}
		res := &ApprovalRequiredError{}
		if link := htmlquery.FindOne(n, `.//a[contains(@href, '/groups/')]`); link != nil {
			res.GroupName = collapseSpace(htmlquery.InnerText(link))
			res.GroupURL = absolute(base, htmlquery.SelectAttr(link, "href"))
		} else if strong := htmlquery.FindOne(n, `.//strong|.//b`); strong != nil {
			res.GroupName = collapseSpace(htmlquery.InnerText(strong))
		}
		return res, true
	}
	return nil, false
}

func absolute(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
