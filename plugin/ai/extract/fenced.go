package extract

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hrygo/autotask/store"
)

var markdown = goldmark.New()

// ParseFenced reads the first fenced code block tagged json and parses its
// body with ParseStrict.
func ParseFenced(raw string) (*store.TaskRecord, bool) {
	if !strings.Contains(raw, "```") && !strings.Contains(raw, "~~~") {
		return nil, false
	}

	src := []byte(raw)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var body []byte
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok || !strings.EqualFold(string(block.Language(src)), "json") {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		body = buf.Bytes()
		found = true
		return ast.WalkStop, nil
	})
	if !found {
		return nil, false
	}
	return ParseStrict(string(body))
}
