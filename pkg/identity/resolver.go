package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/instapod/platform/pkg/gateway/httpclient"
	"golang.org/x/oauth2"
)

// ErrNotResolved is returned when the lookup completes but yields no username.
var ErrNotResolved = errors.New("identity not resolved")

const maxPageBytes = 2 << 20

// MaxHandleLength is the longest account handle the platform issues.
const MaxHandleLength = 30

var usernamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`alternateName"\s*:\s*"@([^"]+)"`),
	regexp.MustCompile(`"owner"\s*:\s*\{[^}]*?"username"\s*:\s*"([^"]+)"`),
}

// Resolver maps a raw post id to the account that published it.
type Resolver interface {
	Resolve(ctx context.Context, rawID string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, rawID string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, rawID string) (string, error) {
	return f(ctx, rawID)
}

type HTTPResolverOptions struct {
	BaseURL     string
	Timeout     time.Duration
	Retries     int
	AccessToken string
	Backoff     time.Duration
}

// HTTPResolver fetches the public post page and extracts the author's handle.
type HTTPResolver struct {
	client   *http.Client
	baseURL  string
	attempts int
	backoff  time.Duration
}

func NewHTTPResolver(opts HTTPResolverOptions) *HTTPResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	client := httpclient.New(opts.Timeout)
	if opts.AccessToken != "" {
		base := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: opts.AccessToken,
			TokenType:   "Bearer",
		}))
		client.Timeout = opts.Timeout
	}

	return &HTTPResolver{
		client:   client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		attempts: opts.Retries + 1,
		backoff:  opts.Backoff,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, rawID string) (string, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return "", ErrNotResolved
	}
	target := fmt.Sprintf("%s/%s/", r.baseURL, url.PathEscape(rawID))

	var page []byte
	err := httpclient.Retry(ctx, r.attempts, r.backoff, func() error {
		body, status, err := r.fetch(ctx, target)
		if err != nil {
			if httpclient.IsRetriable(err) {
				return err
			}
			return httpclient.Permanent(err)
		}
		if httpclient.IsRetriableStatus(status) {
			return fmt.Errorf("identity lookup: upstream status %d", status)
		}
		if status != http.StatusOK {
			return httpclient.Permanent(fmt.Errorf("%w: upstream status %d", ErrNotResolved, status))
		}
		page = body
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("identity lookup for %s: %w", rawID, err)
	}

	username := ExtractUsername(page)
	if username == "" {
		return "", ErrNotResolved
	}
	return username, nil
}

func (r *HTTPResolver) fetch(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ExtractUsername returns the first plausible account handle found in a post
// page, or "". Matches longer than MaxHandleLength are ignored.
func ExtractUsername(page []byte) string {
	for _, re := range usernamePatterns {
		if m := re.FindSubmatch(page); m != nil {
			if name := strings.TrimSpace(string(m[1])); ValidHandle(name) {
				return name
			}
		}
	}
	return ""
}

// ValidHandle reports whether name is non-empty and within MaxHandleLength.
func ValidHandle(name string) bool {
	return name != "" && utf8.RuneCountInString(name) <= MaxHandleLength
}
