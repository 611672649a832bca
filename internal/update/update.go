// Package update checks GitHub releases for a newer vulntrack and replaces
// the running binary on request.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	semver3 "github.com/blang/semver"
	semver "github.com/blang/semver/v4"
	"github.com/rhysd/go-github-selfupdate/selfupdate"

	"github.com/vulntrack/vulntrack/internal/config"
)

// Repo is the GitHub slug releases are published under.
const Repo = "vulntrack/vulntrack"

const (
	stateFile  = "update.json"
	defaultTTL = 24 * time.Hour
)

// latestURL is a variable so tests can point it at a fake server.
var latestURL = "https://api.github.com/repos/" + Repo + "/releases/latest"

// state is persisted between runs so the release API is hit at most once per TTL.
type state struct {
	CheckedAt time.Time `json:"checked_at"`
	Latest    string    `json:"latest"`
}

// Checker looks up the latest release. The zero value is not usable; use
// newChecker.
type Checker struct {
	URL    string
	Dir    string
	TTL    time.Duration
	Client *http.Client
	now    func() time.Time
}

func newChecker() (*Checker, error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return nil, err
	}
	return &Checker{
		URL:    latestURL,
		Dir:    dir,
		TTL:    defaultTTL,
		Client: &http.Client{Timeout: 2 * time.Second},
		now:    time.Now,
	}, nil
}

func (c *Checker) statePath() string { return filepath.Join(c.Dir, stateFile) }

func (c *Checker) load() state {
	var s state
	b, err := os.ReadFile(c.statePath())
	if err != nil {
		return s
	}
	if json.Unmarshal(b, &s) != nil {
		return state{}
	}
	return s
}

func (c *Checker) save(s state) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.statePath(), b, 0o644)
}

// fetch asks the release API for the newest tag.
func (c *Checker) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "vulntrack-updater")
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release lookup: %s", resp.Status)
	}
	var rel struct {
		TagName string `json:"tag_name"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", fmt.Errorf("release lookup: %w", err)
	}
	if rel.TagName != "" {
		return normalize(rel.TagName), nil
	}
	return normalize(rel.Name), nil
}

// Latest returns the newest known release, refreshing the saved state when
// it is older than TTL. A failed refresh falls back to the saved value.
func (c *Checker) Latest(ctx context.Context) string {
	s := c.load()
	if s.Latest != "" && c.now().Sub(s.CheckedAt) <= c.TTL {
		return s.Latest
	}
	v, err := c.fetch(ctx)
	if err != nil || v == "" {
		return s.Latest
	}
	_ = c.save(state{CheckedAt: c.now(), Latest: v})
	return v
}

// Check returns (latest, isNewer, error). It is a no-op in CI or when
// noNetwork is set.
func Check(current string, noNetwork bool) (string, bool, error) {
	if os.Getenv("CI") != "" || noNetwork {
		return "", false, nil
	}
	c, err := newChecker()
	if err != nil {
		return "", false, nil
	}
	latest := c.Latest(context.Background())
	current = normalize(current)
	if latest == "" || current == "" {
		return latest, false, nil
	}
	return latest, compare(latest, current) > 0, nil
}

func normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// compare orders two versions by semver precedence. Unparseable versions
// sort lowest.
func compare(a, b string) int {
	av, aerr := semver.ParseTolerant(a)
	bv, berr := semver.ParseTolerant(b)
	switch {
	case aerr != nil && berr != nil:
		return 0
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	}
	return av.Compare(bv)
}

// SelfUpdate replaces the running binary with the latest release and
// returns the installed version.
func SelfUpdate(current string) (string, error) {
	ver, err := semver.ParseTolerant(current)
	if err != nil {
		ver = semver.MustParse("0.0.0")
	}
	latest, err := selfupdate.UpdateSelf(semver3.MustParse(ver.String()), Repo)
	if err != nil {
		return "", err
	}
	return latest.Version.String(), nil
}
