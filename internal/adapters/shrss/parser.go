package shrss

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"seoul-housing-ingest/internal/domain"
)

// Parser turns raw SH RSS bytes into feed entries.
type Parser struct {
	feed *gofeed.Parser
}

var _ domain.FeedParser = (*Parser)(nil)

func NewParser() *Parser {
	return &Parser{feed: gofeed.NewParser()}
}

// Parse keeps document order. Items without a title, a link or a seq are dropped.
func (p *Parser) Parse(raw []byte) ([]domain.FeedEntry, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty rss payload", domain.ErrInvalidArgument)
	}
	feed, err := p.feed.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse sh rss: %w", err)
	}
	entries := make([]domain.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := plainText(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}
		seq := ExtractSeq(link)
		if seq == "" {
			continue
		}
		entry := domain.FeedEntry{Seq: seq, Title: title, Link: link}
		if item.PublishedParsed != nil {
			published := item.PublishedParsed.UTC()
			entry.PublishedAt = &published
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// plainText strips markup some SH titles carry inside CDATA and collapses whitespace.
func plainText(s string) string {
	if strings.Contains(s, "<") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
