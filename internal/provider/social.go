package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"crypto-summary-bot/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxMentions = 15

// SocialClient pulls short mentions for a coin from an ordered list of
// feed mirrors. Mirrors are tried in configured order with a bounded
// per-attempt timeout; the first mirror that answers wins. The client
// reports Unreachable only after every mirror failed. Mirror order is
// configuration, never learned.
type SocialClient struct {
	client         *http.Client
	mirrors        []string
	attemptTimeout time.Duration
	maxMentions    int
	tracer         trace.Tracer
}

func NewSocialClient(tracer trace.Tracer, mirrors []string, attemptTimeout time.Duration) *SocialClient {
	if attemptTimeout <= 0 {
		attemptTimeout = 8 * time.Second
	}
	return &SocialClient{
		client:         &http.Client{},
		mirrors:        mirrors,
		attemptTimeout: attemptTimeout,
		maxMentions:    defaultMaxMentions,
		tracer:         tracer,
	}
}

// Fetch collects recent mentions for the coin's feed queries. Mentions
// are returned oldest first so prompt truncation can drop from the
// front.
func (c *SocialClient) Fetch(ctx context.Context, coin domain.Coin) (*domain.SocialSnapshot, error) {
	_, span := c.tracer.Start(ctx, "social.fetch-mentions")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	if len(c.mirrors) == 0 {
		return nil, domain.NewSourceError(domain.SourceSocial, domain.ErrKindUnreachable,
			fmt.Errorf("no feed mirrors configured"))
	}

	query := feedQuery(coin)

	var lastErr error
	for _, mirror := range c.mirrors {
		mentions, err := c.fetchMirror(ctx, mirror, query)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		sort.SliceStable(mentions, func(i, j int) bool {
			return mentions[i].PublishedAt.Before(mentions[j].PublishedAt)
		})
		if len(mentions) > c.maxMentions {
			mentions = mentions[len(mentions)-c.maxMentions:]
		}
		span.SetAttributes(attribute.Int("mentions", len(mentions)))
		return &domain.SocialSnapshot{
			Symbol:    strings.ToUpper(coin.Symbol),
			Mentions:  mentions,
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	return nil, domain.NewSourceError(domain.SourceSocial, domain.ErrKindUnreachable,
		fmt.Errorf("all %d feed mirrors failed: %w", len(c.mirrors), lastErr))
}

func (c *SocialClient) fetchMirror(ctx context.Context, mirror, query string) ([]domain.SocialMention, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	base := strings.TrimRight(mirror, "/")
	u := fmt.Sprintf("%s/search/rss?f=tweets&q=%s", base, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("feed mirror %s returned %d: %s", base, resp.StatusCode, truncateForLog(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rss struct {
		Channel struct {
			Items []struct {
				Title       string `xml:"title"`
				Description string `xml:"description"`
				Creator     string `xml:"creator"`
				PubDate     string `xml:"pubDate"`
			} `xml:"item"`
		} `xml:"channel"`
	}
	if err := xml.Unmarshal(body, &rss); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}

	feedID := mirrorHost(base)
	mentions := make([]domain.SocialMention, 0, len(rss.Channel.Items))
	for _, row := range rss.Channel.Items {
		text := sanitizeMention(row.Title)
		if text == "" {
			text = sanitizeMention(row.Description)
		}
		if text == "" {
			continue
		}
		publishedAt := parseFeedDate(row.PubDate)
		if publishedAt.IsZero() {
			publishedAt = time.Now().UTC()
		}
		mentions = append(mentions, domain.SocialMention{
			Text:        text,
			Author:      strings.TrimSpace(row.Creator),
			FeedID:      feedID,
			PublishedAt: publishedAt,
		})
	}
	return mentions, nil
}

// feedQuery builds the search term for a coin. The first configured
// feed query wins; the cashtag form is the fallback.
func feedQuery(coin domain.Coin) string {
	for _, q := range coin.FeedQueries {
		if strings.TrimSpace(q) != "" {
			return strings.TrimSpace(q)
		}
	}
	return "$" + strings.ToUpper(coin.Symbol)
}

func parseFeedDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func sanitizeMention(in string) string {
	return truncateRunes(strings.TrimSpace(stripTags(in)), 280)
}

// truncateRunes caps s at max bytes without splitting a UTF-8 rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func stripTags(in string) string {
	if !strings.ContainsRune(in, '<') {
		return in
	}
	var b strings.Builder
	inside := false
	for _, r := range in {
		switch r {
		case '<':
			inside = true
			continue
		case '>':
			inside = false
			continue
		}
		if !inside {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func mirrorHost(base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return u.Host
	}
	return base
}

func truncateForLog(s string) string {
	return truncateRunes(s, 200)
}
