package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"MovieTrackr/internal/domain"
	"MovieTrackr/internal/metadata"
)

func moviesAPI(omdbURL string) *api {
	return &api{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		movieSearch: metadata.NewOMDBClient("k", omdbURL, 100),
	}
}

func TestMoviesSearchProxiesOMDb(t *testing.T) {
	var gotSearch, gotPage string
	omdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSearch = r.URL.Query().Get("s")
		gotPage = r.URL.Query().Get("page")
		_, _ = w.Write([]byte(`{"Response":"True","totalResults":"11","Search":[{"imdbID":"tt0090605","Title":"Aliens","Year":"1986","Poster":"https://img/aliens.jpg"}]}`))
	}))
	defer omdb.Close()

	req := httptest.NewRequest(http.MethodGet, "/v1/movies/search?q=aliens&page=2", nil)
	rr := httptest.NewRecorder()
	moviesAPI(omdb.URL).handleMoviesSearch(rr, withUser(req, "user-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if gotSearch != "aliens" || gotPage != "2" {
		t.Fatalf("unexpected upstream query: s=%q page=%q", gotSearch, gotPage)
	}
	var got domain.MovieSearchPage
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Page != 2 || got.TotalPages != 2 || got.TotalResults != 11 || len(got.Results) != 1 || got.Results[0].Title != "Aliens" {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestMoviesSearchValidation(t *testing.T) {
	api := moviesAPI("http://127.0.0.1:0/")

	for _, target := range []string{"/v1/movies/search", "/v1/movies/search?q=alien&page=0", "/v1/movies/search?q=alien&page=101"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		api.handleMoviesSearch(rr, withUser(req, "user-1"))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status: %d", target, rr.Code)
		}
		if code := decodeErrorCode(t, rr); code != "validation_error" {
			t.Fatalf("%s: unexpected code: %s", target, code)
		}
	}
}

func TestMoviesSearchUpstreamFailure(t *testing.T) {
	omdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Request limit reached!", http.StatusUnauthorized)
	}))
	defer omdb.Close()

	req := httptest.NewRequest(http.MethodGet, "/v1/movies/search?q=alien", nil)
	rr := httptest.NewRecorder()
	moviesAPI(omdb.URL).handleMoviesSearch(rr, withUser(req, "user-1"))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}
