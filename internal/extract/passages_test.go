package extract

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func TestExtractHTML_Basic(t *testing.T) {
	extractor := NewPassageExtractor(0, 0)

	page := `
	<html>
	<head><title>Field Notes</title><style>p { color: red; }</style></head>
	<body>
		<p>Our elders say that this tradition has been passed down for generations.</p>
		<script>var x = "According to law, this should never be extracted.";</script>
		<p>The p<0.05 value indicates statistical significance in our measurements.</p>
		<p>Short.</p>
	</body>
	</html>
	`

	doc, err := extractor.ExtractHTML(page)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if doc.Title != "Field Notes" {
		t.Errorf("Expected title 'Field Notes', got %q", doc.Title)
	}

	want := []Passage{
		{Text: "Our elders say that this tradition has been passed down for generations.", Index: 0},
		{Text: "The p<0.05 value indicates statistical significance in our measurements.", Index: 1},
	}
	if diff := cmp.Diff(want, doc.Passages); diff != "" {
		t.Errorf("passages mismatch (-want +got):\n%s", diff)
	}

	if strings.Contains(doc.Text, "never be extracted") {
		t.Error("script content leaked into visible text")
	}
}

func TestExtractHTML_Empty(t *testing.T) {
	extractor := NewPassageExtractor(0, 0)

	doc, err := extractor.ExtractHTML("")
	if err != nil {
		t.Fatalf("Expected no error for empty HTML, got %v", err)
	}
	if len(doc.Passages) != 0 {
		t.Errorf("Expected 0 passages, got %d", len(doc.Passages))
	}
}

func TestSplitText_Deduplication(t *testing.T) {
	extractor := NewPassageExtractor(10, 200)

	text := "Historical records show the flood came. historical records show the flood came. A different sentence here."
	passages := extractor.SplitText(text)

	if len(passages) != 2 {
		t.Fatalf("Expected 2 passages after dedupe, got %d: %+v", len(passages), passages)
	}
	for i, p := range passages {
		if p.Index != i {
			t.Errorf("Expected index %d, got %d", i, p.Index)
		}
	}
}

func TestSplitSentences_BasicSplitting(t *testing.T) {
	text := "This is the first sentence in the paragraph. This is the second sentence here! Is this the third one?"
	sentences := splitSentences(text, DefaultMinLength, DefaultMaxLength)

	if len(sentences) != 3 {
		t.Errorf("Expected 3 sentences, got %d: %v", len(sentences), sentences)
	}
}

func TestSplitSentences_KeepsDecimals(t *testing.T) {
	text := "The p<0.05 value and n=40 were reported by the team. Next sentence is long enough to keep."
	sentences := splitSentences(text, 10, 500)

	if len(sentences) != 2 {
		t.Fatalf("Expected 2 sentences, got %d: %v", len(sentences), sentences)
	}
	if !strings.Contains(sentences[0], "p<0.05") {
		t.Errorf("Expected decimal to stay in first sentence, got %q", sentences[0])
	}
}

func TestSplitSentences_MinMaxLength(t *testing.T) {
	short := "Too short."
	long := strings.Repeat("word ", 120) + "end."
	ok := "This sentence has a perfectly reasonable length for tagging."

	sentences := splitSentences(short+" "+long+" "+ok, DefaultMinLength, DefaultMaxLength)

	if diff := cmp.Diff([]string{ok}, sentences); diff != "" {
		t.Errorf("length filtering mismatch (-want +got):\n%s", diff)
	}
}

func TestSplitSentences_NormalizesWhitespace(t *testing.T) {
	text := "Line one continues\n  onto the next line without a break."
	sentences := splitSentences(text, 10, 500)

	want := []string{"Line one continues onto the next line without a break."}
	if diff := cmp.Diff(want, sentences); diff != "" {
		t.Errorf("whitespace mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractVisibleText_SkipInvisibleElements(t *testing.T) {
	page := `<html><body>
		<p>Visible paragraph.</p>
		<noscript>Enable JavaScript.</noscript>
		<iframe>Frame text.</iframe>
		<div>Another <b>visible</b> block.</div>
	</body></html>`

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	text := extractVisibleText(doc)

	for _, want := range []string{"Visible paragraph.", "Another", "visible", "block."} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected visible text to contain %q, got %q", want, text)
		}
	}
	for _, hidden := range []string{"Enable JavaScript", "Frame text"} {
		if strings.Contains(text, hidden) {
			t.Errorf("Expected %q to be skipped", hidden)
		}
	}
}

func TestVisibleText(t *testing.T) {
	text, err := VisibleText("<p>In my experience,</p><p>I have seen this.</p>")
	if err != nil {
		t.Fatalf("VisibleText failed: %v", err)
	}
	if text != "In my experience, I have seen this." {
		t.Errorf("unexpected visible text %q", text)
	}
}
