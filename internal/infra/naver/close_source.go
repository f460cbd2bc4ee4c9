// Package naver scrapes historical daily closes from Naver Finance.
package naver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/wonny/aegis-strategy/internal/domain/trade"
)

const (
	defaultBaseURL  = "https://finance.naver.com"
	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 10 // 페이지당 10거래일
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// CloseSource implements trade.ClosePriceSource over the sise_day pages
type CloseSource struct {
	httpClient *http.Client
	baseURL    string
	maxPages   int
}

var _ trade.ClosePriceSource = (*CloseSource)(nil)

// Option configures a CloseSource
type Option func(*CloseSource)

// WithBaseURL overrides the Naver Finance host
func WithBaseURL(u string) Option {
	return func(s *CloseSource) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithMaxPages bounds how far back a fetch paginates
func WithMaxPages(n int) Option {
	return func(s *CloseSource) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// NewCloseSource 클라이언트 생성
func NewCloseSource(opts ...Option) *CloseSource {
	s := &CloseSource{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		maxPages:   defaultMaxPages,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchDailyCloses returns closes for code with from <= date <= to (calendar days), oldest first
func (s *CloseSource) FetchDailyCloses(ctx context.Context, code string, from, to time.Time) ([]trade.ClosePrice, error) {
	fromDay := from.Format(trade.DayLayout)
	toDay := to.Format(trade.DayLayout)

	var out []trade.ClosePrice
	for page := 1; page <= s.maxPages; page++ {
		rows, err := s.fetchPage(ctx, code, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Warn().Err(err).Str("code", code).Int("page", page).Msg("Naver page fetch failed, keeping partial result")
			break
		}
		if len(rows) == 0 {
			break
		}

		reachedStart := false
		for _, r := range rows {
			d := r.Date.Format(trade.DayLayout)
			if d < fromDay {
				reachedStart = true
				continue
			}
			if d <= toDay {
				out = append(out, r)
			}
		}
		if reachedStart {
			break
		}
	}

	// 페이지는 최신순
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	log.Debug().
		Str("code", code).
		Str("from", fromDay).
		Str("to", toDay).
		Int("count", len(out)).
		Msg("Fetched daily closes from Naver")

	return out, nil
}

func (s *CloseSource) fetchPage(ctx context.Context, code string, page int) ([]trade.ClosePrice, error) {
	url := fmt.Sprintf("%s/item/sise_day.naver?code=%s&page=%d", s.baseURL, code, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var rows []trade.ClosePrice
	doc.Find("table.type2 tr").Each(func(i int, sel *goquery.Selection) {
		tds := sel.Find("td")
		if tds.Length() < 2 {
			return
		}

		date, err := time.Parse("2006.01.02", strings.TrimSpace(tds.Eq(0).Text()))
		if err != nil {
			return
		}
		closePrice := parseNumber(tds.Eq(1).Text())
		if closePrice == 0 {
			return
		}

		rows = append(rows, trade.ClosePrice{Code: code, Date: date, Close: closePrice})
	})
	return rows, nil
}

// parseNumber 쉼표 제거 후 정수 변환
func parseNumber(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
