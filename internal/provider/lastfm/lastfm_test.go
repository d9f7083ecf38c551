package lastfm

import (
	"context"
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"github.com/ademuri/lastfm-go/lastfm"

	"github.com/ademuri/listening-identity/internal/collector"
	"github.com/ademuri/listening-identity/internal/provider"
)

const recentTracksXML = `
<recenttracks user="listener" page="1" perPage="3" totalPages="10" total="30">
  <track nowplaying="true">
    <artist mbid="">Zach Bryan</artist>
    <name>Pink Skies</name>
  </track>
  <track>
    <artist mbid="b0b2d4a1">Bon Iver</artist>
    <name>Holocene</name>
    <mbid>7e1a</mbid>
    <date uts="1700000000">14 Nov 2023, 22:13</date>
  </track>
  <track>
    <artist mbid="">Morgan Wade</artist>
    <name>Wilder Days</name>
    <mbid></mbid>
    <date uts="1699990000">14 Nov 2023, 19:26</date>
  </track>
</recenttracks>`

const topArtistsXML = `
<topartists user="listener" type="overall">
  <artist rank="1"><name>Bon Iver</name><mbid>b0b2d4a1</mbid></artist>
  <artist rank="2"><name>Morgan Wade</name><mbid></mbid></artist>
</topartists>`

func testClient(t *testing.T) *Client {
	t.Helper()
	var recent lastfm.UserGetRecentTracks
	if err := xml.Unmarshal([]byte(recentTracksXML), &recent); err != nil {
		t.Fatalf("parsing recent tracks fixture: %v", err)
	}
	var top lastfm.UserGetTopArtists
	if err := xml.Unmarshal([]byte(topArtistsXML), &top); err != nil {
		t.Fatalf("parsing top artists fixture: %v", err)
	}
	return &Client{
		user:     "listener",
		recent:   func(lastfm.P) (lastfm.UserGetRecentTracks, error) { return recent, nil },
		top:      func(lastfm.P) (lastfm.UserGetTopArtists, error) { return top, nil },
		throttle: provider.NewThrottle(time.Millisecond, 3, nil),
	}
}

func TestRecentlyPlayed(t *testing.T) {
	plays, err := testClient(t).RecentlyPlayed(context.Background(), 50)
	if err != nil {
		t.Fatalf("RecentlyPlayed: %v", err)
	}
	if len(plays) != 2 {
		t.Fatalf("expected the now-playing track to be skipped, got %+v", plays)
	}

	want := collector.Play{
		TrackID: "mbid:7e1a", TrackName: "Holocene",
		ArtistID: "mbid:b0b2d4a1", ArtistName: "Bon Iver",
		PlayedAt: time.Unix(1700000000, 0).UTC(),
	}
	if plays[0] != want {
		t.Errorf("got %+v, want %+v", plays[0], want)
	}
	if plays[1].TrackID != "lastfm:morgan wade/wilder days" || plays[1].ArtistID != "" {
		t.Errorf("unexpected fallback identity %+v", plays[1])
	}
}

func TestTopArtists(t *testing.T) {
	artists, err := testClient(t).TopArtists(context.Background(), "overall")
	if err != nil {
		t.Fatalf("TopArtists: %v", err)
	}
	if len(artists) != 2 || artists[0].Rank != 1 || artists[0].ArtistID != "mbid:b0b2d4a1" || artists[1].Name != "Morgan Wade" {
		t.Errorf("unexpected artists %+v", artists)
	}
}

func TestRetryable(t *testing.T) {
	c := testClient(t)
	calls := 0
	c.recent = func(lastfm.P) (lastfm.UserGetRecentTracks, error) {
		calls++
		return lastfm.UserGetRecentTracks{}, &lastfm.LastfmError{Code: 29, Message: "rate limit exceeded"}
	}
	_, err := c.RecentlyPlayed(context.Background(), 10)
	var lerr *lastfm.LastfmError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LastfmError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	calls = 0
	c.recent = func(lastfm.P) (lastfm.UserGetRecentTracks, error) {
		calls++
		return lastfm.UserGetRecentTracks{}, &lastfm.LastfmError{Code: 6, Message: "user not found"}
	}
	c.RecentlyPlayed(context.Background(), 10)
	if calls != 1 {
		t.Errorf("expected no retry for invalid parameters, got %d calls", calls)
	}
}

func TestAudioFeaturesUnavailable(t *testing.T) {
	_, err := testClient(t).AudioFeatures(context.Background(), "mbid:7e1a")
	if !errors.Is(err, collector.ErrNoFeatures) {
		t.Errorf("expected ErrNoFeatures, got %v", err)
	}
}
