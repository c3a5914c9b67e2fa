package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/fortuna/internal/oracle"
)

const ruleWidth = 48

func renderFortune(w io.Writer, name, date string, r *oracle.FortuneResult) {
	heading(w, fmt.Sprintf("Bounty fortune for %s, %s", name, date))
	field(w, "Bounty", fmt.Sprintf("%s  %s", scoreBar(r.Score), bounty(r.Score)))
	field(w, "Chart", r.Bazi)
	field(w, "Elements", r.FiveElements)
	field(w, "Color", r.LuckyColor)
	field(w, "Heading", r.LuckyDirection)
	fmt.Fprintln(w)
	fmt.Fprintln(w, wrap(r.Summary, ruleWidth))
	list(w, "Do", r.Todo)
	list(w, "Avoid", r.NotTodo)
	if r.Insight != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, wrap("“"+r.Insight+"”", ruleWidth))
	}
	posterLine(w, r.ImageURL)
}

func renderCompatibility(w io.Writer, a, b string, r *oracle.CompatibilityResult) {
	heading(w, fmt.Sprintf("Bond of %s and %s", a, b))
	field(w, "Bond", fmt.Sprintf("%s  %d/100", scoreBar(r.Score), r.Score))
	field(w, a, r.BaziA)
	field(w, b, r.BaziB)
	field(w, "Elements", r.FiveElementMatch)
	fmt.Fprintln(w)
	fmt.Fprintln(w, wrap(r.MatchAnalysis, ruleWidth))
	if r.Dynamic != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, wrap(r.Dynamic, ruleWidth))
	}
	list(w, "Together", r.Todo)
	list(w, "Avoid", r.NotTodo)
	if r.Advice != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, wrap(r.Advice, ruleWidth))
	}
	posterLine(w, r.ImageURL)
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("─", ruleWidth))
}

// field prints a labelled value; empty values are skipped.
func field(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-9s %s\n", label+":", value)
}

func list(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  • %s\n", it)
	}
}

func posterLine(w io.Writer, url string) {
	if url == "" {
		return
	}
	fmt.Fprintf(w, "\nWanted poster attached (%d bytes of data URL, use --json to extract).\n", len(url))
}

// scoreBar renders a 0-100 score as a ten-cell bar.
func scoreBar(score int) string {
	score = min(max(score, 0), 100)
	filled := (score + 5) / 10
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

// bounty turns a fortune score into a bounty in berries.
func bounty(score int) string {
	score = min(max(score, 0), 100)
	n := score * 15_000_000
	s := fmt.Sprint(n)
	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return "฿" + b.String()
}

// wrap breaks text into lines of at most width runes at word boundaries.
func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	lineLen := 0
	for i, word := range words {
		n := len([]rune(word))
		if i > 0 {
			if lineLen+1+n > width {
				b.WriteByte('\n')
				lineLen = 0
			} else {
				b.WriteByte(' ')
				lineLen++
			}
		}
		b.WriteString(word)
		lineLen += n
	}
	return b.String()
}

// decodeDataURL extracts the payload of a base64 data URL.
func decodeDataURL(url string) ([]byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, errors.New("poster: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("poster: data URL is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(payload)
}
