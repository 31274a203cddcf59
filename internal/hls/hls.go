// Package hls looks inside HLS playlists before they are handed to ffmpeg: picking a variant for the requested height
// and working out the total duration so that ffmpeg's position can be shown as a percentage.
package hls

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// Plan is what ffmpeg should be pointed at.
type Plan struct {
	URL string
	// Master is true if URL was chosen from the variants of a master playlist.
	Master bool
	// Height of the chosen variant, or 0 if not known.
	Height int
	// Duration of a VOD playlist, or 0 for live or unknown.
	Duration time.Duration
}

type variant struct {
	uri       string
	height    int
	bandwidth uint32
}

// Resolve fetches playlistURL. For a master playlist it picks the tallest variant no taller than maxHeight (any height
// when maxHeight is 0), falling back to the shortest one if all are taller.
func Resolve(ctx context.Context, client *http.Client, playlistURL string, maxHeight int) (*Plan, error) {
	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, err
	}
	playlist, listType, err := fetch(ctx, client, playlistURL)
	if err != nil {
		return nil, err
	}
	switch listType {
	case m3u8.MEDIA:
		return &Plan{URL: playlistURL, Duration: mediaDuration(playlist.(*m3u8.MediaPlaylist))}, nil
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		chosen, ok := chooseVariant(master.Variants, maxHeight)
		if !ok {
			return nil, fmt.Errorf("master playlist has no variants")
		}
		ref, err := url.Parse(chosen.uri)
		if err != nil {
			return nil, fmt.Errorf("bad variant URI %q: %w", chosen.uri, err)
		}
		plan := &Plan{URL: base.ResolveReference(ref).String(), Master: true, Height: chosen.height}
		// Duration is only for display, so a failure here does not stop the download
		if media, listType, err := fetch(ctx, client, plan.URL); err == nil && listType == m3u8.MEDIA {
			plan.Duration = mediaDuration(media.(*m3u8.MediaPlaylist))
		}
		return plan, nil
	}
	return nil, fmt.Errorf("unknown playlist type")
}

func fetch(ctx context.Context, client *http.Client, u string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("failed to fetch playlist: %s", resp.Status)
	}
	playlist, listType, err := m3u8.DecodeFrom(resp.Body, false)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode playlist: %w", err)
	}
	return playlist, listType, nil
}

func chooseVariant(variants []*m3u8.Variant, maxHeight int) (variant, bool) {
	var all []variant
	for _, v := range variants {
		if v == nil || v.URI == "" {
			continue
		}
		all = append(all, variant{uri: v.URI, height: parseHeight(v.Resolution), bandwidth: v.Bandwidth})
	}
	if len(all) == 0 {
		return variant{}, false
	}
	// Tallest first, then highest bandwidth
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].height != all[j].height {
			return all[i].height > all[j].height
		}
		return all[i].bandwidth > all[j].bandwidth
	})
	if maxHeight <= 0 {
		return all[0], true
	}
	for _, v := range all {
		if v.height > 0 && v.height <= maxHeight {
			return v, true
		}
	}
	return all[len(all)-1], true
}

// parseHeight reads "1280x720".
func parseHeight(resolution string) int {
	_, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return height
}

func mediaDuration(p *m3u8.MediaPlaylist) time.Duration {
	if p == nil || !p.Closed {
		return 0
	}
	var total float64
	for _, s := range p.Segments {
		if s != nil {
			total += s.Duration
		}
	}
	return time.Duration(total * float64(time.Second))
}
