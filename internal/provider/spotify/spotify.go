// Package spotify adapts the Spotify Web API to the collector.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/ademuri/listening-identity/internal/collector"
	"github.com/ademuri/listening-identity/internal/provider"
	"github.com/ademuri/listening-identity/internal/store"
)

const prefix = "spotify:"

// Windows are the top-artist time ranges Spotify offers.
var Windows = []string{string(spotify.ShortTermRange), string(spotify.MediumTermRange), string(spotify.LongTermRange)}

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// Interval between API calls. Zero means 200ms.
	Interval time.Duration
	Logger   *slog.Logger
}

// api is the part of *spotify.Client used here.
type api interface {
	PlayerRecentlyPlayedOpt(ctx context.Context, opt *spotify.RecentlyPlayedOptions) ([]spotify.RecentlyPlayedItem, error)
	CurrentUsersTopArtists(ctx context.Context, opts ...spotify.RequestOption) (*spotify.FullArtistPage, error)
	GetAudioFeatures(ctx context.Context, ids ...spotify.ID) ([]*spotify.AudioFeatures, error)
}

type Client struct {
	api      api
	throttle *provider.Throttle
}

// New returns a client authenticated with a stored refresh token. The access
// token is refreshed by the oauth2 transport as needed.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.ClientID == "" || config.ClientSecret == "" || config.RefreshToken == "" {
		return nil, errors.New("spotify_client_id, spotify_client_secret and spotify_refresh_token must be set")
	}
	auth := spotifyauth.New(
		spotifyauth.WithClientID(config.ClientID),
		spotifyauth.WithClientSecret(config.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopeUserReadRecentlyPlayed, spotifyauth.ScopeUserTopRead),
	)
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: config.RefreshToken})
	return newClient(spotify.New(httpClient), config), nil
}

func newClient(a api, config Config) *Client {
	if config.Interval <= 0 {
		config.Interval = 200 * time.Millisecond
	}
	return &Client{api: a, throttle: provider.NewThrottle(config.Interval, 3, config.Logger)}
}

func (c *Client) RecentlyPlayed(ctx context.Context, limit int) ([]collector.Play, error) {
	if limit > 50 {
		limit = 50
	}
	var items []spotify.RecentlyPlayedItem
	err := c.throttle.Do(ctx, "recently played", retryable, func() error {
		var err error
		items, err = c.api.PlayerRecentlyPlayedOpt(ctx, &spotify.RecentlyPlayedOptions{Limit: spotify.Numeric(limit)})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("spotify recently played: %w", err)
	}
	return convertPlays(items), nil
}

func (c *Client) TopArtists(ctx context.Context, window string) ([]collector.RankedArtist, error) {
	var page *spotify.FullArtistPage
	err := c.throttle.Do(ctx, "top artists", retryable, func() error {
		var err error
		page, err = c.api.CurrentUsersTopArtists(ctx, spotify.Timerange(spotify.Range(window)), spotify.Limit(50))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("spotify top artists (%s): %w", window, err)
	}
	return convertTopArtists(page), nil
}

func (c *Client) AudioFeatures(ctx context.Context, trackID string) (store.Features, error) {
	id := spotify.ID(strings.TrimPrefix(trackID, prefix))
	var features []*spotify.AudioFeatures
	err := c.throttle.Do(ctx, "audio features", retryable, func() error {
		var err error
		features, err = c.api.GetAudioFeatures(ctx, id)
		return err
	})
	if err != nil {
		return store.Features{}, fmt.Errorf("spotify audio features: %w", err)
	}
	if len(features) == 0 || features[0] == nil {
		return store.Features{}, collector.ErrNoFeatures
	}
	return convertFeatures(features[0]), nil
}

func convertPlays(items []spotify.RecentlyPlayedItem) []collector.Play {
	plays := make([]collector.Play, 0, len(items))
	for _, item := range items {
		// Local files and unavailable tracks have no Spotify id.
		if item.Track.ID == "" {
			continue
		}
		play := collector.Play{
			TrackID:   prefix + string(item.Track.ID),
			TrackName: item.Track.Name,
			PlayedAt:  item.PlayedAt.UTC(),
		}
		// The first credited artist owns the track.
		if len(item.Track.Artists) > 0 {
			a := item.Track.Artists[0]
			play.ArtistID = prefix + string(a.ID)
			play.ArtistName = a.Name
		}
		plays = append(plays, play)
	}
	return plays
}

func convertTopArtists(page *spotify.FullArtistPage) []collector.RankedArtist {
	if page == nil {
		return nil
	}
	artists := make([]collector.RankedArtist, 0, len(page.Artists))
	for i, a := range page.Artists {
		artists = append(artists, collector.RankedArtist{
			ArtistID: prefix + string(a.ID),
			Name:     a.Name,
			Rank:     int(page.Offset) + i + 1,
		})
	}
	return artists
}

func convertFeatures(f *spotify.AudioFeatures) store.Features {
	return store.Features{
		Danceability:     float64(f.Danceability),
		Energy:           float64(f.Energy),
		Valence:          float64(f.Valence),
		Acousticness:     float64(f.Acousticness),
		Instrumentalness: float64(f.Instrumentalness),
		Liveness:         float64(f.Liveness),
		Speechiness:      float64(f.Speechiness),
		Tempo:            float64(f.Tempo),
	}
}

// retryable reports whether Spotify asked us to back off or failed on its
// side.
func retryable(err error) bool {
	var serr spotify.Error
	if errors.As(err, &serr) {
		return serr.Status == http.StatusTooManyRequests || serr.Status/100 == 5
	}
	return false
}
