package playlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/playcohq/playco/pkg/errors"

	"github.com/playcohq/playco/internal/models"
)

// ResolvedLink is the canonical form of a media link plus fetched metadata.
type ResolvedLink struct {
	Link         string
	LinkType     models.LinkType
	LinkID       string
	OriginalLink string
	Title        string
	ThumbnailURL string
	RawData      []byte
}

// LinkResolver canonicalises a user-submitted media link and fetches its
// display metadata. Implementations return PREDICTION_FAILED errors with
// reason link_not_supported for providers they cannot handle and
// link_fetch_failed when the provider rejects the metadata lookup.
type LinkResolver interface {
	Resolve(ctx context.Context, link string) (*ResolvedLink, error)
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeResolver resolves youtube.com and youtu.be links via the public
// oEmbed endpoint.
type YouTubeResolver struct {
	client   *http.Client
	endpoint string
}

// YouTubeResolverOption customises a YouTubeResolver.
type YouTubeResolverOption func(*YouTubeResolver)

// WithHTTPClient overrides the HTTP client used for metadata lookups.
func WithHTTPClient(client *http.Client) YouTubeResolverOption {
	return func(r *YouTubeResolver) {
		r.client = client
	}
}

// WithOEmbedEndpoint overrides the oEmbed endpoint base URL.
func WithOEmbedEndpoint(endpoint string) YouTubeResolverOption {
	return func(r *YouTubeResolver) {
		r.endpoint = endpoint
	}
}

// NewYouTubeResolver builds a resolver with a sensible request timeout.
func NewYouTubeResolver(opts ...YouTubeResolverOption) *YouTubeResolver {
	r := &YouTubeResolver{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: "https://www.youtube.com/oembed",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve canonicalises the link and fetches title/thumbnail metadata.
func (r *YouTubeResolver) Resolve(ctx context.Context, link string) (*ResolvedLink, error) {
	videoID, err := extractYouTubeID(link)
	if err != nil {
		return nil, err
	}

	canonical := "https://www.youtube.com/watch?v=" + videoID

	resolved := &ResolvedLink{
		Link:         canonical,
		LinkType:     models.LinkTypeYouTube,
		LinkID:       videoID,
		OriginalLink: link,
	}

	if err := r.fetchOEmbed(ctx, canonical, resolved); err != nil {
		return nil, err
	}

	return resolved, nil
}

func (r *YouTubeResolver) fetchOEmbed(ctx context.Context, canonical string, resolved *ResolvedLink) error {
	query := url.Values{}
	query.Set("url", canonical)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return apperrors.NewPredictionFailed(apperrors.ReasonLinkFetchFailed, "Could not fetch link metadata").WithInternal(err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return apperrors.NewPredictionFailed(apperrors.ReasonLinkFetchFailed, "Could not fetch link metadata").WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewPredictionFailed(apperrors.ReasonLinkFetchFailed,
			fmt.Sprintf("Metadata lookup returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewPredictionFailed(apperrors.ReasonLinkFetchFailed, "Could not read link metadata").WithInternal(err)
	}

	var payload struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apperrors.NewPredictionFailed(apperrors.ReasonLinkFetchFailed, "Could not decode link metadata").WithInternal(err)
	}

	resolved.Title = payload.Title
	resolved.ThumbnailURL = payload.ThumbnailURL
	resolved.RawData = body
	return nil
}

func extractYouTubeID(link string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(link))
	if err != nil || parsed.Host == "" {
		return "", apperrors.NewPredictionFailed(apperrors.ReasonLinkNotSupported, "Link is not a recognised media URL")
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtube.com":
		switch {
		case parsed.Path == "/watch":
			id = parsed.Query().Get("v")
		case strings.HasPrefix(parsed.Path, "/embed/"):
			id = strings.TrimPrefix(parsed.Path, "/embed/")
		case strings.HasPrefix(parsed.Path, "/shorts/"):
			id = strings.TrimPrefix(parsed.Path, "/shorts/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(parsed.Path, "/")
	}

	id = strings.Trim(id, "/")
	if !youtubeIDPattern.MatchString(id) {
		return "", apperrors.NewPredictionFailed(apperrors.ReasonLinkNotSupported, "Link is not a recognised media URL")
	}

	return id, nil
}
