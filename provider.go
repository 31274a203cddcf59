package video_downloader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mycoderisyad/video-downloader-uploader/async"
	"github.com/mycoderisyad/video-downloader-uploader/generic"
)

var (
	ErrDuplicateProvider = errors.New("duplicate provider name")
	ErrInvalidProvider   = errors.New("invalid provider")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrNoMatch           = errors.New("no provider matched the input")
	ErrNoPreview         = errors.New("provider has no preview support")
	ErrUnknownProvider   = errors.New("unknown provider")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

var allowedSchemes = generic.NewSet("http", "https")

// A Source is what a Provider knows about a URL it matched.
type Source struct {
	URL      *url.URL
	Platform Platform
	Route    Route
	// ID is the platform's own identifier for the video, when the provider can tell.
	ID string
	// Filename is the last path element, for direct files.
	Filename string
}

func (s *Source) String() string {
	return s.URL.String()
}

// Preview is metadata about a video that can be shown before downloading it.
type Preview struct {
	Title     string
	Author    string
	Duration  time.Duration
	Thumbnail string
}

type MatchFunc = func(*url.URL) (*Source, error)

type PreviewFunc = func(context.Context, *Source) (*Preview, error)

// A Provider matches any URL it knows how to handle, giving a Source that says how to download the video.
type Provider struct {
	Name  string
	Match MatchFunc
	// Preview is optional.
	Preview PreviewFunc
	// Priority of the matcher, lower (including negative) means matching earlier.
	Priority int16
}

func (p Provider) WithPriority(priority int16) Provider {
	p.Priority = priority
	return p
}

// A Match is the result of a Provider successfully matching a URL.
type Match struct {
	ProviderName string
	Source       *Source
}

// A ProviderRegistry is a collection of Provider instances which can be used to try to match URLs.
type ProviderRegistry struct {
	providers   []*Provider
	providerMap map[string]*Provider
}

// Add registers a Provider with the ProviderRegistry. Provider.Name and Provider.Match must be set, and
// Provider.Name must be unique within the ProviderRegistry.
func (r *ProviderRegistry) Add(p Provider) error {
	if r.providerMap == nil {
		r.providerMap = make(map[string]*Provider)
	}
	if p.Name == "" || p.Match == nil {
		return ErrInvalidProvider
	}
	if _, ok := r.providerMap[p.Name]; ok {
		return ErrDuplicateProvider
	}
	r.providerMap[p.Name] = &p
	r.providers = append(r.providers, r.providerMap[p.Name])
	r.sortByPriority()
	return nil
}

// CreatePriority is a shortcut for Add(Provider{Name: ..., Match: ..., Priority: ...}).
func (r *ProviderRegistry) CreatePriority(name string, f MatchFunc, priority int16) error {
	return r.Add(Provider{
		Name:     name,
		Match:    f,
		Priority: priority,
	})
}

// GetPriority gets the priority of the named Provider.
func (r *ProviderRegistry) GetPriority(name string) (int16, error) {
	if p, ok := r.providerMap[name]; ok {
		return p.Priority, nil
	}
	return PriorityDefault, ErrUnknownProvider
}

// List returns the names of registered providers in priority order.
func (r *ProviderRegistry) List() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name)
	}
	return names
}

// Match a string against each Provider in priority order. A string that is not an absolute http(s) URL fails with
// ErrInvalidURL; if nothing matches, the error wraps ErrNoMatch along with each provider's reason.
func (r *ProviderRegistry) Match(s string) (*Match, error) {
	u, err := ParseURL(s)
	if err != nil {
		return nil, err
	}
	var result error = ErrNoMatch
	for _, p := range r.providers {
		if source, err := p.Match(u); source != nil && err == nil {
			return &Match{ProviderName: p.Name, Source: source}, nil
		} else if err != nil {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", p.Name)))
		}
	}
	return nil, result
}

// MatchWith will attempt to match a string against a specific provider.
func (r *ProviderRegistry) MatchWith(name string, s string) (*Match, error) {
	p, ok := r.providerMap[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	u, err := ParseURL(s)
	if err != nil {
		return nil, err
	}
	if source, err := p.Match(u); source != nil && err == nil {
		return &Match{ProviderName: p.Name, Source: source}, nil
	}
	return nil, ErrNoMatch
}

// Preview fetches metadata for a previous Match, using the Provider that made it. It returns as soon as ctx is done,
// even if the provider does not honour cancellation.
func (r *ProviderRegistry) Preview(ctx context.Context, m *Match) (*Preview, error) {
	p, ok := r.providerMap[m.ProviderName]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if p.Preview == nil {
		return nil, ErrNoPreview
	}
	select {
	case result := <-async.RunResult(func() (*Preview, error) { return p.Preview(ctx, m.Source) }):
		return result.Parts()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// MustAdd wraps Add but panics if there is an error.
func (r *ProviderRegistry) MustAdd(p Provider) {
	generic.Unwrap_(r.Add(p))
}

// MustCreatePriority wraps CreatePriority but panics if there is an error.
func (r *ProviderRegistry) MustCreatePriority(name string, f MatchFunc, priority int16) {
	generic.Unwrap_(r.CreatePriority(name, f, priority))
}

// SetPriority adjust the priority of a named Provider.
func (r *ProviderRegistry) SetPriority(name string, priority int16) error {
	if p, ok := r.providerMap[name]; ok {
		p.Priority = priority
		r.sortByPriority()
		return nil
	}
	return ErrUnknownProvider
}

func (r *ProviderRegistry) sortByPriority() {
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].Priority < r.providers[j].Priority
	})
}

// ParseURL accepts only absolute http(s) URLs with a host.
func ParseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !allowedSchemes.Contains(u.Scheme) || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, s)
	}
	return u, nil
}

var DefaultProviderRegistry ProviderRegistry
