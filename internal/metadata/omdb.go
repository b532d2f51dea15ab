package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"MovieTrackr/internal/domain"

	"golang.org/x/time/rate"
)

// Client looks up movie metadata by external movie id and searches titles.
// Lookup returns domain.ErrNotFound when the id is unknown upstream.
type Client interface {
	Lookup(ctx context.Context, movieID string) (domain.Movie, error)
	Search(ctx context.Context, query string, page int) (domain.MovieSearchPage, error)
}

const (
	releasedLayout = "02 Jan 2006"
	searchPageSize = 10
)

type OMDBClient struct {
	APIKey  string
	BaseURL string

	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

func NewOMDBClient(apiKey, baseURL string, perSecond float64) *OMDBClient {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &OMDBClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

type omdbResponse struct {
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	ImdbID     string `json:"imdbID"`
	Title      string `json:"Title"`
	Poster     string `json:"Poster"`
	Released   string `json:"Released"`
	ImdbRating string `json:"imdbRating"`
}

type omdbSearchResponse struct {
	Response     string `json:"Response"`
	Error        string `json:"Error"`
	TotalResults string `json:"totalResults"`
	Search       []struct {
		ImdbID string `json:"imdbID"`
		Title  string `json:"Title"`
		Year   string `json:"Year"`
		Poster string `json:"Poster"`
	} `json:"Search"`
}

func (c *OMDBClient) Lookup(ctx context.Context, movieID string) (domain.Movie, error) {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return domain.Movie{}, domain.ErrNotFound
	}

	var out omdbResponse
	if err := c.get(ctx, url.Values{"i": {movieID}}, &out); err != nil {
		return domain.Movie{}, err
	}
	if !strings.EqualFold(out.Response, "True") {
		return domain.Movie{}, domain.ErrNotFound
	}

	movie := domain.Movie{
		ID:        movieID,
		Title:     omdbValue(out.Title),
		PosterRef: omdbValue(out.Poster),
		Rating:    omdbValue(out.ImdbRating),
	}
	if out.ImdbID != "" {
		movie.ID = out.ImdbID
	}
	if released := omdbValue(out.Released); released != "" {
		if t, err := time.Parse(releasedLayout, released); err == nil {
			movie.ReleaseDate = &t
		}
	}
	return movie, nil
}

// Search finds movies whose title matches query. OMDb pages are fixed at ten
// results. A query with no matches yields an empty first page, not an error.
func (c *OMDBClient) Search(ctx context.Context, query string, page int) (domain.MovieSearchPage, error) {
	query = strings.TrimSpace(query)
	if page < 1 {
		page = 1
	}
	empty := domain.MovieSearchPage{Results: []domain.MovieSearchHit{}, Page: 1}
	if query == "" {
		return empty, nil
	}

	var out omdbSearchResponse
	params := url.Values{
		"s":    {query},
		"page": {strconv.Itoa(page)},
		"type": {"movie"},
	}
	if err := c.get(ctx, params, &out); err != nil {
		return domain.MovieSearchPage{}, err
	}
	if !strings.EqualFold(out.Response, "True") {
		return empty, nil
	}

	res := domain.MovieSearchPage{
		Results: make([]domain.MovieSearchHit, 0, len(out.Search)),
		Page:    page,
	}
	for _, m := range out.Search {
		res.Results = append(res.Results, domain.MovieSearchHit{
			ID:        m.ImdbID,
			Title:     omdbValue(m.Title),
			PosterRef: omdbValue(m.Poster),
			Year:      omdbValue(m.Year),
		})
	}
	if total, err := strconv.Atoi(out.TotalResults); err == nil && total > 0 {
		res.TotalResults = total
		res.TotalPages = (total + searchPageSize - 1) / searchPageSize
	}
	return res, nil
}

// get issues one rate-limited OMDb request with params plus the api key and
// decodes the JSON body into out.
func (c *OMDBClient) get(ctx context.Context, params url.Values, out any) error {
	if c.APIKey == "" {
		return errors.New("omdb: api key not configured")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("omdb rate limit: %w", err)
		}
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("omdb base url: %w", err)
	}
	q := u.Query()
	q.Set("apikey", c.APIKey)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("omdb request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("omdb request failed: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode omdb response: %w", err)
	}
	return nil
}

// OMDb reports missing fields as "N/A".
func omdbValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "N/A") {
		return ""
	}
	return v
}
