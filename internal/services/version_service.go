package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/version"
)

// DefaultReleaseURL points at the latest GitHub release of this project.
const DefaultReleaseURL = "https://api.github.com/repos/JGeek00/crowdsec-monitor-api/releases/latest"

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	PublishedAt string `json:"published_at"`
	HTMLURL     string `json:"html_url"`
}

// VersionService polls GitHub releases and remembers whether a newer
// version than the running one has been published.
type VersionService struct {
	currentVersion string
	apiURL         string
	client         *http.Client
	log            *logrus.Entry

	mu        sync.RWMutex
	latest    string
	lastCheck time.Time
}

func NewVersionService(apiURL string) *VersionService {
	if apiURL == "" {
		apiURL = DefaultReleaseURL
	}
	return &VersionService{
		currentVersion: version.Version,
		apiURL:         apiURL,
		client:         &http.Client{Timeout: 10 * time.Second},
		log:            logger.Component("version"),
	}
}

// SetCurrentVersion sets the current version for testing.
func (s *VersionService) SetCurrentVersion(v string) {
	s.currentVersion = v
}

// ClearCache forgets the last result.
func (s *VersionService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = ""
	s.lastCheck = time.Time{}
}

// CurrentVersion returns the running version.
func (s *VersionService) CurrentVersion() string { return s.currentVersion }

// LatestVersion returns the newer release tag, if any.
func (s *VersionService) LatestVersion() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != ""
}

// LastCheck returns when the last successful check happened.
func (s *VersionService) LastCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCheck
}

// Check fetches the latest release. It is scheduled periodically; failures
// are returned so the scheduler logs them, and the previous result is kept.
func (s *VersionService) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return fmt.Errorf("build release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "crowdsec-monitor-api")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("check for new version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("check for new version: unexpected status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("decode release: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCheck = time.Now()
	if release.TagName != "" && isVersionLower(s.currentVersion, release.TagName) {
		s.latest = release.TagName
		s.log.WithFields(logrus.Fields{"latest": release.TagName, "current": s.currentVersion}).Info("New version available")
	} else {
		s.latest = ""
		s.log.WithField("current", s.currentVersion).Debug("Version up to date")
	}
	return nil
}

// isVersionLower reports whether a < b comparing dot-separated numeric
// components; a leading "v" is ignored and missing components count as 0.
func isVersionLower(a, b string) bool {
	pa := strings.Split(strings.TrimPrefix(a, "v"), ".")
	pb := strings.Split(strings.TrimPrefix(b, "v"), ".")
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		x, y := versionPart(pa, i), versionPart(pb, i)
		if x != y {
			return x < y
		}
	}
	return false
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
