// Package tablehash identifies the content of a work-queue table so the
// pagination loop can tell whether a page transition replaced the rows.
package tablehash

import (
	"hash/fnv"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Digest hashes the ordered cell text of an HTML table with FNV-64a. Two
// tables get the same digest only when every cell, in every position, is
// the same; markup outside cells is ignored. A table without cells yields 0.
func Digest(tableHTML string) uint64 {
	tokens := cellTokens(tableHTML)
	if len(tokens) == 0 {
		return 0
	}
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Write([]byte(tok))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// cellTokens walks the HTML with the tokenizer and returns "<col>:<text>"
// for every non-empty cell.
func cellTokens(tableHTML string) []string {
	tokenizer := html.NewTokenizer(strings.NewReader(tableHTML))

	var (
		tokens []string
		cell   strings.Builder
		inCell bool
		col    int
	)
	flush := func() {
		text := strings.Join(strings.Fields(cell.String()), " ")
		if text != "" {
			tokens = append(tokens, strconv.Itoa(col)+":"+text)
		}
		cell.Reset()
	}

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if inCell {
				flush()
			}
			return tokens
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "tr":
				col = 0
			case "td", "th":
				if inCell {
					flush()
				}
				inCell = true
				col++
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "td", "th":
				if inCell {
					flush()
				}
				inCell = false
			}
		case html.TextToken:
			if inCell {
				cell.Write(tokenizer.Text())
				cell.WriteByte(' ')
			}
		}
	}
}
