package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"product-ingest/models"
)

const ratedPage = `<html><head>
<script type="application/ld+json">{"@type":"BreadcrumbList"}</script>
<script type="application/ld+json">[{"@type":"Organization"},{"@type":"Product","aggregateRating":{"reviewCount":"1234","ratingValue":4.5}}]</script>
</head><body></body></html>`

func TestParseReviewStats(t *testing.T) {
	tests := []struct {
		name string
		html string
		want models.ReviewStats
	}{
		{"array with string count", ratedPage, models.ReviewStats{ReviewCount: 1234, ReviewScore: 4.5}},
		{
			"comment wrapped",
			`<script type="application/ld+json"><!--{"aggregateRating":{"reviewCount":12,"ratingValue":"4.8"}}--></script>`,
			models.ReviewStats{ReviewCount: 12, ReviewScore: 4.8},
		},
		{
			"malformed block skipped",
			`<script type="application/ld+json">{not json</script>
			 <script type="application/ld+json">{"aggregateRating":{"reviewCount":"n/a","ratingValue":4}}</script>
			 <script type="application/ld+json">{"aggregateRating":{"reviewCount":7,"ratingValue":3.9}}</script>`,
			models.ReviewStats{ReviewCount: 7, ReviewScore: 3.9},
		},
		{
			"off-scale rating skipped",
			`<script type="application/ld+json">{"aggregateRating":{"reviewCount":"12","ratingValue":"9.2"}}</script>
			 <script type="application/ld+json">{"aggregateRating":{"reviewCount":-4,"ratingValue":4.2}}</script>
			 <script type="application/ld+json">{"aggregateRating":{"reviewCount":"30","ratingValue":"4.4"}}</script>`,
			models.ReviewStats{ReviewCount: 30, ReviewScore: 4.4},
		},
		{
			"only off-scale rating",
			`<script type="application/ld+json">{"aggregateRating":{"reviewCount":"12","ratingValue":"9.2"}}</script>`,
			models.ReviewStats{},
		},
		{
			"missing rating value",
			`<script type="application/ld+json">{"aggregateRating":{"reviewCount":7}}</script>`,
			models.ReviewStats{},
		},
		{"no json-ld", `<html><body>nothing here</body></html>`, models.ReviewStats{}},
		{
			"other script types ignored",
			`<script type="text/javascript">{"aggregateRating":{"reviewCount":1,"ratingValue":5}}</script>`,
			models.ReviewStats{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseReviewStats([]byte(tt.html))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// reviewServer serves ratedPage on /ok/*, 500 on /fail/*, and fails the
// first request of /flaky/* only.
func reviewServer(t *testing.T) (*httptest.Server, func(path string) int) {
	t.Helper()
	var mu sync.Mutex
	hits := map[string]int{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		n := hits[r.URL.Path]
		mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/fail/"):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.HasPrefix(r.URL.Path, "/flaky/") && n == 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(ratedPage))
		}
	}))
	t.Cleanup(srv.Close)

	count := func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[path]
	}
	return srv, count
}

func newTestEnricher(srv *httptest.Server) *ReviewEnricher {
	return NewReviewEnricher(srv.Client(), time.Millisecond, 0, newTestLogger())
}

func TestAttachBoundedPoolWithOneFailure(t *testing.T) {
	srv, hits := reviewServer(t)
	e := newTestEnricher(srv)

	items := []*models.RawListing{
		{Name: "a", LookupURL: srv.URL + "/ok/a"},
		{Name: "b", LookupURL: srv.URL + "/fail/b"},
		{Name: "c", LookupURL: srv.URL + "/ok/c"},
		{Name: "no url", Reviews: models.ReviewStats{ReviewCount: 3, ReviewScore: 4.1}},
		{Name: "d", LookupURL: srv.URL + "/ok/d"},
		{Name: "e", LookupURL: srv.URL + "/ok/e"},
	}

	found := e.Attach(context.Background(), items, AttachOptions{Workers: 2, Timeout: 2 * time.Second, MaxRetries: 2})
	if found != 4 {
		t.Errorf("found: got %d, want 4", found)
	}

	want := models.ReviewStats{ReviewCount: 1234, ReviewScore: 4.5}
	for _, i := range []int{0, 2, 4, 5} {
		if items[i].Reviews != want {
			t.Errorf("item %q: got %+v, want %+v", items[i].Name, items[i].Reviews, want)
		}
	}
	if items[1].Reviews != (models.ReviewStats{}) {
		t.Errorf("failed item should get {0,0}, got %+v", items[1].Reviews)
	}
	if items[3].Reviews.ReviewCount != 3 {
		t.Errorf("item without URL must be untouched, got %+v", items[3].Reviews)
	}
	if n := hits("/fail/b"); n != 2 {
		t.Errorf("failing URL attempts: got %d, want 2", n)
	}
}

func TestAttachRetriesTransientFailure(t *testing.T) {
	srv, hits := reviewServer(t)
	e := newTestEnricher(srv)

	items := []*models.RawListing{{Name: "flaky", LookupURL: srv.URL + "/flaky/x"}}
	e.Attach(context.Background(), items, AttachOptions{Workers: 8, Timeout: 2 * time.Second, MaxRetries: 3})

	if items[0].Reviews.ReviewCount != 1234 {
		t.Errorf("second attempt should succeed, got %+v", items[0].Reviews)
	}
	if n := hits("/flaky/x"); n != 2 {
		t.Errorf("attempts: got %d, want 2", n)
	}
}

func TestAttachSingleAttempt(t *testing.T) {
	srv, hits := reviewServer(t)
	e := newTestEnricher(srv)

	items := []*models.RawListing{{Name: "flaky", LookupURL: srv.URL + "/flaky/y"}}
	e.Attach(context.Background(), items, AttachOptions{Workers: 1, Timeout: time.Second, MaxRetries: 1})

	if items[0].Reviews != (models.ReviewStats{}) {
		t.Errorf("one attempt only, got %+v", items[0].Reviews)
	}
	if n := hits("/flaky/y"); n != 1 {
		t.Errorf("attempts: got %d, want 1", n)
	}
}

func TestAttachTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	e := newTestEnricher(srv)

	items := []*models.RawListing{{Name: "slow", LookupURL: srv.URL + "/slow"}}
	start := time.Now()
	e.Attach(context.Background(), items, AttachOptions{Workers: 1, Timeout: 50 * time.Millisecond, MaxRetries: 2})

	if items[0].Reviews != (models.ReviewStats{}) {
		t.Errorf("timed out item should get {0,0}, got %+v", items[0].Reviews)
	}
	if time.Since(start) > time.Second {
		t.Errorf("per-attempt timeout not honoured: took %v", time.Since(start))
	}
}

func TestAttachNoURLs(t *testing.T) {
	e := NewReviewEnricher(nil, time.Millisecond, 0, newTestLogger())
	items := []*models.RawListing{{Name: "tiki item", Reviews: models.ReviewStats{ReviewCount: 9, ReviewScore: 4}}}
	if got := e.Attach(context.Background(), items, AttachOptions{Workers: 4}); got != 0 {
		t.Errorf("found: got %d, want 0", got)
	}
	if items[0].Reviews.ReviewCount != 9 {
		t.Error("inline review stats must be kept")
	}
}

func TestAttachOffScaleRatingKeepsProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<script type="application/ld+json">{"aggregateRating":{"reviewCount":"12","ratingValue":"9.2"}}</script>`)
	}))
	t.Cleanup(srv.Close)
	e := newTestEnricher(srv)

	items := []*models.RawListing{{
		Source:    models.SourceLazada,
		Name:      "Loa Bluetooth JBL Go 3",
		Price:     text("990.000 ₫"),
		Sold:      text("250 sold"),
		LookupURL: srv.URL + "/p/jbl",
	}}
	e.Attach(context.Background(), items, AttachOptions{Workers: 1, Timeout: time.Second, MaxRetries: 1})
	if items[0].Reviews != (models.ReviewStats{}) {
		t.Fatalf("off-scale rating should default to {0,0}, got %+v", items[0].Reviews)
	}

	clean := NewCleaner(DefaultTaxonomy(), newTestLogger()).Clean(items[0])
	kept := NewProductValidator(newTestLogger()).Filter([]models.Product{newTestBackfiller(7).Fill(clean)})
	if len(kept) != 1 {
		t.Errorf("product should survive validation after backfill, kept %d", len(kept))
	}
}

func TestAttachStopsOnCancel(t *testing.T) {
	srv, _ := reviewServer(t)
	e := NewReviewEnricher(srv.Client(), time.Millisecond, 400, newTestLogger())

	items := make([]*models.RawListing, 6)
	for i := range items {
		items[i] = &models.RawListing{Name: fmt.Sprint(i), LookupURL: fmt.Sprintf("%s/ok/%d", srv.URL, i)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	found := e.Attach(ctx, items, AttachOptions{Workers: 2, Timeout: time.Second, MaxRetries: 2})

	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("Attach should return soon after cancellation, took %v", elapsed)
	}
	if found >= len(items) {
		t.Errorf("found: got %d, queued lookups should be skipped", found)
	}
	for _, it := range items[2:] {
		if it.Reviews != (models.ReviewStats{}) {
			t.Errorf("skipped item %q should keep {0,0}, got %+v", it.Name, it.Reviews)
		}
	}
}

func TestAttachParseFailureIsNotRetried(t *testing.T) {
	srv, hits := reviewServer(t)
	e := newTestEnricher(srv)
	e.parse = func([]byte) (models.ReviewStats, error) {
		return models.ReviewStats{}, errors.New("unreadable document")
	}

	items := []*models.RawListing{{Name: "a", LookupURL: srv.URL + "/ok/a"}}
	e.Attach(context.Background(), items, AttachOptions{Workers: 1, Timeout: time.Second, MaxRetries: 3})

	if items[0].Reviews != (models.ReviewStats{}) {
		t.Errorf("got %+v, want {0,0}", items[0].Reviews)
	}
	if n := hits("/ok/a"); n != 1 {
		t.Errorf("attempts: got %d, want 1", n)
	}
}
