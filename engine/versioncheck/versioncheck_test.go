package versioncheck

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/netbricks/netbricks/engine/post"
)

func TestCompareVersions(t *testing.T) {
	for _, c := range []struct {
		a, b string
		cmp  int
	}{
		{"1.1.1", "1.1.1", 0},
		{"1.2", "1.10", -1},
		{"2.0", "1.99.9", 1},
		{"1.0", "1.0.0", 0},
	} {
		cmp, err := CompareVersions(c.a, c.b)
		assert.Equal(t, nil, err)
		assert.Equalf(t, c.cmp, cmp, "%s vs %s", c.a, c.b)
	}
	_, err := CompareVersions("1.x", "1.0")
	assert.T(t, err != nil)
}

func waitResults(t *testing.T, q *post.Queue, n int) {
	deadline := time.Now().Add(5 * time.Second)
	got := 0
	for got < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d results", n)
		}
		got += q.Tick()
		time.Sleep(time.Millisecond)
	}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bool":
			fmt.Fprintf(w, "%v", r.URL.Query().Get("version") == "1.1.1")
		case "/latest":
			fmt.Fprint(w, `"1.2.0"`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	q := post.NewQueue()
	checker := NewChecker(q)
	defer checker.Shutdown()

	var results []*Result
	var errs []error
	callback := func(res *Result, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		results = append(results, res)
	}
	checker.Check("bridge", srv.URL+"/bool", "1.1.1", callback)
	checker.Check("bridge", srv.URL+"/bool", "1.0.0", callback)
	checker.Check("bridge", srv.URL+"/latest", "1.1.1", callback)
	checker.Check("bridge", srv.URL+"/latest", "1.2.0", callback)
	checker.Check("bridge", srv.URL+"/missing", "1.1.1", callback)
	waitResults(t, q, 5)

	assert.Equal(t, 4, len(results))
	assert.Equal(t, 1, len(errs))
	assert.T(t, results[0].UpToDate)
	assert.T(t, !results[1].UpToDate)
	assert.T(t, !results[2].UpToDate)
	assert.Equal(t, "1.2.0", results[2].Remote)
	assert.T(t, results[3].UpToDate)
}
