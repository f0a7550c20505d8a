package page

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

const testPage = `<html><head><title>t</title><meta name="robots" content="noimageai"></head><body><p>hi</p></body></html>`

// newTestDocument parses testPage.
func newTestDocument(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString("https://example.com/", testPage)
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return doc
}

// receive reads one mutation or fails after a second.
func receive(t *testing.T, ch <-chan Mutation) Mutation {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mutation")
		return Mutation{}
	}
}

// TestDocumentScan tests the DOM query capability.
func TestDocumentScan(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t)
	if doc.URL() != "https://example.com/" {
		t.Errorf("unexpected url %q", doc.URL())
	}

	flags := doc.Scan()
	if flags.NoAI || !flags.NoImageAI {
		t.Errorf("unexpected flags %+v", flags)
	}

	doc.AppendMeta("robots", "noai")
	flags = doc.Scan()
	if !flags.NoAI || !flags.NoImageAI {
		t.Errorf("expected both flags after append, got %+v", flags)
	}
}

// TestDocumentMutations tests that every change is published.
func TestDocumentMutations(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t)
	ch, cancel := doc.Subscribe(4)
	defer cancel()

	t.Run("append meta", func(t *testing.T) {
		doc.AppendMeta("robots", "noai")
		m := receive(t, ch)
		if m.Type != MutationChildList {
			t.Errorf("expected childList, got %s", m.Type)
		}
		if len(m.Added) != 1 || m.Added[0].Data != "meta" {
			t.Error("expected the new meta in Added")
		}
		if m.Target == nil || m.Target.Data != "head" {
			t.Error("expected meta to be appended to head")
		}
	})

	t.Run("set attribute", func(t *testing.T) {
		n := doc.AppendMeta("robots", "noai")
		receive(t, ch)

		if err := doc.SetAttr(n, "Content", "noimageai"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m := receive(t, ch)
		if m.Type != MutationAttributes {
			t.Errorf("expected attributes, got %s", m.Type)
		}
		if m.AttributeName != "content" || m.OldValue != "noai" {
			t.Errorf("unexpected attribute record %q old=%q", m.AttributeName, m.OldValue)
		}
	})

	t.Run("remove", func(t *testing.T) {
		n := doc.AppendElement("div")
		receive(t, ch)

		if err := doc.Remove(n); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		m := receive(t, ch)
		if len(m.Removed) != 1 || m.Removed[0].Data != "div" {
			t.Error("expected the div in Removed")
		}
		if m.Removed[0] == n {
			t.Error("expected a detached copy, not the live node")
		}
		if err := doc.Remove(n); !errors.Is(err, ErrNotInDocument) {
			t.Errorf("expected ErrNotInDocument, got %v", err)
		}
	})
}

// TestDocumentForeignNode verifies nodes from other trees are rejected.
func TestDocumentForeignNode(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t)
	foreign := &html.Node{Type: html.ElementNode, Data: "meta"}
	if err := doc.SetAttr(foreign, "content", "x"); !errors.Is(err, ErrNotInDocument) {
		t.Errorf("expected ErrNotInDocument, got %v", err)
	}
	if err := doc.Remove(nil); !errors.Is(err, ErrNotInDocument) {
		t.Errorf("expected ErrNotInDocument, got %v", err)
	}
}

// TestDocumentCancelledSubscriber verifies that a cancelled subscriber does
// not block mutations.
func TestDocumentCancelledSubscriber(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t)
	_, cancel := doc.Subscribe(0)
	cancel()
	cancel() // idempotent

	done := make(chan struct{})
	go func() {
		doc.AppendMeta("robots", "noai")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mutation blocked on cancelled subscriber")
	}
}

// TestDocumentRender tests serialization of the live tree.
func TestDocumentRender(t *testing.T) {
	t.Parallel()

	doc := New("about:blank", nil)
	doc.AppendMeta("robots", "noai")

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(buf.String(), `content="noai"`) {
		t.Errorf("expected meta in output, got %s", buf.String())
	}
	if !doc.Scan().NoAI {
		t.Error("expected noai on document without head")
	}
}

// TestMutationTypeString tests the mutation type names.
func TestMutationTypeString(t *testing.T) {
	t.Parallel()

	if MutationChildList.String() != "childList" || MutationAttributes.String() != "attributes" {
		t.Error("unexpected mutation type names")
	}
	if MutationType(9).String() != "unknown" {
		t.Error("expected unknown")
	}
}
