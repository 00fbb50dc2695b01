package auth

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/jrsteele09/go-session-client/sessions"
)

const cookieKeyPrefix = "cookies:"

type storedCookie struct {
	URL    string       `json:"url"`
	Cookie *http.Cookie `json:"cookie"`
}

// StoredJar is a cookie jar that writes received cookies through to a KV so
// the refresh cookie survives process restarts.
type StoredJar struct {
	kv     sessions.KV
	jar    *cookiejar.Jar
	loaded map[string]bool
	lock   sync.Mutex
}

var _ http.CookieJar = (*StoredJar)(nil)

func NewStoredJar(kv sessions.KV) (*StoredJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "[NewStoredJar] cookie jar")
	}
	return &StoredJar{kv: kv, jar: jar, loaded: make(map[string]bool)}, nil
}

func (j *StoredJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.lock.Lock()
	defer j.lock.Unlock()

	records := j.loadLocked(u.Host)
	j.jar.SetCookies(u, cookies)

	for _, c := range cookies {
		replaced := false
		for i := range records {
			if records[i].Cookie.Name == c.Name && records[i].Cookie.Path == c.Path {
				records[i] = storedCookie{URL: u.String(), Cookie: c}
				replaced = true
			}
		}
		if !replaced {
			records = append(records, storedCookie{URL: u.String(), Cookie: c})
		}
	}
	if data, err := json.Marshal(records); err == nil {
		_ = j.kv.Set(cookieKeyPrefix+u.Host, string(data))
	}
}

func (j *StoredJar) Cookies(u *url.URL) []*http.Cookie {
	j.lock.Lock()
	defer j.lock.Unlock()

	j.loadLocked(u.Host)
	return j.jar.Cookies(u)
}

// loadLocked replays the stored cookies for host into the in-memory jar the
// first time host is seen.
func (j *StoredJar) loadLocked(host string) []storedCookie {
	raw, ok, err := j.kv.Get(cookieKeyPrefix + host)
	if err != nil || !ok {
		j.loaded[host] = true
		return nil
	}
	var records []storedCookie
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		j.loaded[host] = true
		return nil
	}
	records = slices.DeleteFunc(records, func(r storedCookie) bool { return r.Cookie == nil })
	if !j.loaded[host] {
		for _, r := range records {
			if u, err := url.Parse(r.URL); err == nil {
				j.jar.SetCookies(u, []*http.Cookie{r.Cookie})
			}
		}
		j.loaded[host] = true
	}
	return records
}
