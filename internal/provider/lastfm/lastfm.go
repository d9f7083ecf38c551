// Package lastfm adapts the last.fm scrobble history to the collector.
// last.fm has no audio features, so tracks collected from it never carry
// any.
package lastfm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"

	"github.com/ademuri/listening-identity/internal/collector"
	"github.com/ademuri/listening-identity/internal/provider"
	"github.com/ademuri/listening-identity/internal/reconcile"
	"github.com/ademuri/listening-identity/internal/store"
)

// Windows are the top-artist periods last.fm offers.
var Windows = []string{"7day", "1month", "3month", "6month", "12month", "overall"}

type Config struct {
	APIKey string
	Secret string
	User   string
	// Interval between API calls. Zero means one second.
	Interval time.Duration
	Logger   *slog.Logger
}

type Client struct {
	user     string
	recent   func(lastfm.P) (lastfm.UserGetRecentTracks, error)
	top      func(lastfm.P) (lastfm.UserGetTopArtists, error)
	throttle *provider.Throttle
}

func New(config Config) (*Client, error) {
	if config.APIKey == "" || config.Secret == "" || config.User == "" {
		return nil, errors.New("api_key, secret and user must be set")
	}
	api := lastfm.New(config.APIKey, config.Secret)
	api.SetUserAgent("listening-identity/1.0")

	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	return &Client{
		user:     strings.ToLower(config.User),
		recent:   func(p lastfm.P) (lastfm.UserGetRecentTracks, error) { return api.User.GetRecentTracks(p) },
		top:      func(p lastfm.P) (lastfm.UserGetTopArtists, error) { return api.User.GetTopArtists(p) },
		throttle: provider.NewThrottle(config.Interval, 3, config.Logger),
	}, nil
}

func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]collector.Play, error) {
	if limit > 200 {
		limit = 200
	}
	var recentTracks lastfm.UserGetRecentTracks
	err := c.throttle.Do(ctx, "recent tracks", retryable, func() error {
		var err error
		recentTracks, err = c.recent(lastfm.P{
			"limit": limit,
			"page":  1,
			"user":  c.user,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching recent tracks: %w", err)
	}
	return convertRecentTracks(recentTracks)
}

func (c *Client) TopArtists(ctx context.Context, window string) ([]collector.RankedArtist, error) {
	var topArtists lastfm.UserGetTopArtists
	err := c.throttle.Do(ctx, "top artists", retryable, func() error {
		var err error
		topArtists, err = c.top(lastfm.P{
			"limit":  50,
			"period": window,
			"user":   c.user,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching top artists (%s): %w", window, err)
	}
	return convertTopArtists(topArtists)
}

func (c *Client) AudioFeatures(ctx context.Context, trackID string) (store.Features, error) {
	return store.Features{}, collector.ErrNoFeatures
}

func convertRecentTracks(recent lastfm.UserGetRecentTracks) ([]collector.Play, error) {
	var plays []collector.Play
	for _, t := range recent.Tracks {
		// The track playing right now has no timestamp yet.
		if t.NowPlaying == "true" || t.Date.Uts == "" {
			continue
		}
		uts, err := strconv.ParseInt(t.Date.Uts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing date of %q: %w", t.Name, err)
		}

		play := collector.Play{
			TrackName:  t.Name,
			ArtistName: t.Artist.Name,
			PlayedAt:   time.Unix(uts, 0).UTC(),
		}
		if t.Artist.Mbid != "" {
			play.ArtistID = "mbid:" + t.Artist.Mbid
		}
		if t.Mbid != "" {
			play.TrackID = "mbid:" + t.Mbid
		} else {
			play.TrackID = "lastfm:" + reconcile.Normalize(t.Artist.Name) + "/" + reconcile.Normalize(t.Name)
		}
		plays = append(plays, play)
	}
	return plays, nil
}

func convertTopArtists(top lastfm.UserGetTopArtists) ([]collector.RankedArtist, error) {
	var artists []collector.RankedArtist
	for i, a := range top.Artists {
		rank := i + 1
		if a.Rank != "" {
			r, err := strconv.Atoi(a.Rank)
			if err != nil {
				return nil, fmt.Errorf("parsing rank of %q: %w", a.Name, err)
			}
			rank = r
		}
		artist := collector.RankedArtist{Name: a.Name, Rank: rank}
		if a.Mbid != "" {
			artist.ArtistID = "mbid:" + a.Mbid
		}
		artists = append(artists, artist)
	}
	return artists, nil
}

// retryable matches the server-side failures last.fm reports: 5xx, service
// offline (11), temporarily unavailable (16) and rate limited (29).
func retryable(err error) bool {
	var lerr *lastfm.LastfmError
	if errors.As(err, &lerr) {
		switch lerr.Code {
		case 11, 16, 29:
			return true
		}
		return lerr.Code/100 == 5
	}
	return false
}
