package env

import (
	"errors"
	"strings"
	"testing"
)

func newTarget(t *testing.T) (*Document, *Element, *Element) {
	t.Helper()
	doc, err := ParseDocument(DefaultMarkup)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	body := doc.Body()
	div, err := doc.CreateElement("div")
	if err != nil {
		t.Fatalf("CreateElement failed: %v", err)
	}
	if _, err := body.AppendChild(div); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}
	if err := div.SetInnerHTML("x"); err != nil {
		t.Fatalf("SetInnerHTML failed: %v", err)
	}
	return doc, body, div
}

func TestElement_InsertAdjacentHTML(t *testing.T) {
	tests := []struct {
		position string
		markup   string
		want     string
	}{
		{"beforebegin", "<i>a</i>", "<i>a</i><div>x</div>"},
		{"afterbegin", "<b>1</b><b>2</b>", "<div><b>1</b><b>2</b>x</div>"},
		{"beforeend", "<b>1</b>", "<div>x<b>1</b></div>"},
		{"afterend", "<i>a</i><i>b</i>", "<div>x</div><i>a</i><i>b</i>"},
		{"BeforeEnd", "text", "<div>xtext</div>"},
	}

	for _, tt := range tests {
		t.Run(tt.position, func(t *testing.T) {
			_, body, div := newTarget(t)
			if err := div.InsertAdjacentHTML(tt.position, tt.markup); err != nil {
				t.Fatalf("InsertAdjacentHTML failed: %v", err)
			}
			if got := body.InnerHTML(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElement_InsertAdjacentHTML_Errors(t *testing.T) {
	t.Run("unknown position", func(t *testing.T) {
		_, _, div := newTarget(t)
		err := div.InsertAdjacentHTML("middle", "<p></p>")
		var domErr *Error
		if !errors.As(err, &domErr) || domErr.Name != "SyntaxError" {
			t.Fatalf("expected SyntaxError, got %v", err)
		}
		if domErr.StringTag() != "DOMException" {
			t.Errorf("tag = %q, want DOMException", domErr.StringTag())
		}
	})

	t.Run("detached element", func(t *testing.T) {
		doc, _, _ := newTarget(t)
		span, _ := doc.CreateElement("span")
		err := span.InsertAdjacentHTML("beforebegin", "<p></p>")
		var domErr *Error
		if !errors.As(err, &domErr) || domErr.Name != "NoModificationAllowedError" {
			t.Fatalf("expected NoModificationAllowedError, got %v", err)
		}
		if err := span.InsertAdjacentHTML("beforeend", "<p></p>"); err != nil {
			t.Errorf("inserting inside a detached element should work: %v", err)
		}
	})

	t.Run("root element sibling", func(t *testing.T) {
		doc, _, _ := newTarget(t)
		err := doc.DocumentElement().InsertAdjacentHTML("afterend", "<p></p>")
		var domErr *Error
		if !errors.As(err, &domErr) || domErr.Name != "NoModificationAllowedError" {
			t.Fatalf("expected NoModificationAllowedError, got %v", err)
		}
	})
}

func TestDocument_Body(t *testing.T) {
	doc, err := ParseDocument("<p>hello</p>")
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	body := doc.Body()
	if body == nil {
		t.Fatal("parser should synthesize a body")
	}
	if body != doc.Body() {
		t.Error("Body should return the same element every time")
	}
	if body.TagName() != "BODY" {
		t.Errorf("TagName = %q", body.TagName())
	}
	if got := body.OuterHTML(); got != "<body><p>hello</p></body>" {
		t.Errorf("OuterHTML = %q", got)
	}
	if Property(doc, "body") != body {
		t.Error("document.body property should return the body")
	}
	if !strings.Contains(doc.Render(), "<p>hello</p>") {
		t.Errorf("Render = %q", doc.Render())
	}
}

func TestElement_AppendChild(t *testing.T) {
	doc, body, div := newTarget(t)

	if _, err := div.AppendChild(body); err == nil {
		t.Fatal("appending an ancestor should fail")
	}

	p, _ := doc.CreateElement("P")
	if p.StringTag() != "HTMLParagraphElement" {
		t.Errorf("tag = %q", p.StringTag())
	}
	if _, err := div.AppendChild(p); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}
	if _, err := body.AppendChild(p); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}
	if got := body.InnerHTML(); got != "<div>x</div><p></p>" {
		t.Errorf("body = %q", got)
	}
	if p.Parent() != body {
		t.Error("moved child should report its new parent")
	}
	if !IsHTMLElement(p) || IsHTMLElement(doc) {
		t.Error("IsHTMLElement misclassified a value")
	}
}

func TestDocument_CreateElement_Invalid(t *testing.T) {
	doc, _ := ParseDocument(DefaultMarkup)
	_, err := doc.CreateElement("bad name")
	var domErr *Error
	if !errors.As(err, &domErr) || domErr.Name != "InvalidCharacterError" {
		t.Fatalf("expected InvalidCharacterError, got %v", err)
	}
}

func TestElement_DropForgetsDetached(t *testing.T) {
	doc, err := ParseDocument(DefaultMarkup)
	if err != nil {
		t.Fatalf("ParseDocument failed: %v", err)
	}
	body := doc.Body()
	tracked := func() int {
		doc.mu.Lock()
		defer doc.mu.Unlock()
		return len(doc.elements)
	}
	base := tracked()

	for i := 0; i < 100; i++ {
		el, err := doc.CreateElement("span")
		if err != nil {
			t.Fatalf("CreateElement failed: %v", err)
		}
		el.Drop()
	}
	if got := tracked(); got != base {
		t.Errorf("tracked elements = %d after dropping detached ones, want %d", got, base)
	}

	body.Drop()
	if doc.Body() != body {
		t.Error("attached element lost its identity after Drop")
	}

	div, _ := doc.CreateElement("div")
	div.Drop()
	if _, err := body.AppendChild(div); err != nil {
		t.Fatalf("AppendChild failed: %v", err)
	}
	if p := div.Parent(); p != body {
		t.Fatal("appended element has the wrong parent")
	}
	if got := doc.wrap(div.node); got != div {
		t.Error("appended element was not tracked again")
	}

	// Removed subtrees become detached.
	if err := body.SetInnerHTML(""); err != nil {
		t.Fatalf("SetInnerHTML failed: %v", err)
	}
	before := tracked()
	div.Drop()
	if got := tracked(); got != before-1 {
		t.Errorf("tracked = %d, want %d", got, before-1)
	}
}
