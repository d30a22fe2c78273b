// Package versioncheck asks a remote endpoint whether the local version is current.
//
// Requests run on an async worker goroutine; callbacks run when the owner drains the post queue.
package versioncheck

import (
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/netbricks/netbricks/engine/async"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/netutil"
	"github.com/netbricks/netbricks/engine/post"
	"github.com/pkg/errors"
)

const _REQUEST_TIMEOUT = 10 * time.Second

// Result is the answer of the version endpoint
type Result struct {
	Name     string
	Local    string
	Remote   string // latest version, if the endpoint reported one
	UpToDate bool
}

// Callback receives a check result on the main loop
type Callback func(res *Result, err error)

// Checker sends version checks on a worker goroutine
type Checker struct {
	worker *async.AsyncJobWorker
	client *http.Client
}

// NewChecker creates a checker whose callbacks are posted to results
func NewChecker(results *post.Queue) *Checker {
	return &Checker{
		worker: async.NewAsyncJobWorker("versioncheck", results),
		client: &http.Client{Timeout: _REQUEST_TIMEOUT},
	}
}

// Check sends GET address?version=local
//
// The endpoint answers with a JSON boolean telling if local is current, or a JSON string holding the latest
// version.
func (c *Checker) Check(name string, address string, local string, callback Callback) {
	c.worker.AppendJob(func() (interface{}, error) {
		return c.check(name, address, local)
	}, func(res interface{}, err error) {
		if err != nil {
			gwlog.Warnf("version check of %s failed: %v", name, err)
			callback(nil, err)
			return
		}
		result := res.(*Result)
		if !result.UpToDate {
			gwlog.Warnf("%s %s is outdated, latest is %q", name, local, result.Remote)
		}
		callback(result, nil)
	})
}

// Shutdown waits for queued checks to finish
func (c *Checker) Shutdown() {
	c.worker.Shutdown()
}

func (c *Checker) check(name string, address string, local string) (*Result, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", address)
	}
	q := u.Query()
	q.Set("version", local)
	u.RawQuery = q.Encode()

	resp, err := c.client.Get(u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s: %s", u, resp.Status)
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var answer interface{}
	if err := netutil.SUBJECT_PACKER.UnpackMsg(data, &answer); err != nil {
		return nil, errors.Wrapf(err, "GET %s: bad answer %q", u, data)
	}
	res := &Result{Name: name, Local: local}
	switch v := answer.(type) {
	case bool:
		res.UpToDate = v
	case string:
		res.Remote = v
		cmp, err := CompareVersions(local, v)
		if err != nil {
			return nil, err
		}
		res.UpToDate = cmp >= 0
	default:
		return nil, errors.Errorf("GET %s: unexpected answer %q", u, data)
	}
	return res, nil
}

// CompareVersions compares dotted versions such as "1.2.10" numerically
func CompareVersions(a, b string) (int, error) {
	pa, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	pb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			if x < y {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

func parseVersion(s string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	res := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Errorf("invalid version %q", s)
		}
		res[i] = n
	}
	return res, nil
}
