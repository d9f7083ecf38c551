package metrics

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ademuri/listening-identity/internal/store"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, time.UTC)
}

func feat(x float64) *store.Features {
	return &store.Features{
		Danceability: x, Energy: x, Valence: x, Acousticness: x,
		Instrumentalness: x, Liveness: x, Speechiness: x, Tempo: 300 * x,
	}
}

func play(artist string, track int64, at time.Time, f *store.Features) store.Event {
	return store.Event{TrackID: track, Artist: artist, PlayedAt: at, Source: store.SourceLive, Features: f}
}

func ranked(artist string, year, rank int) store.RankingRecord {
	return store.RankingRecord{Artist: artist, Year: year, Dimension: "overall", Rank: rank}
}

func TestDiversity(t *testing.T) {
	Convey("Given events in 2021 for A and B and in 2022 for A, C and D", t, func() {
		ds := Dataset{Events: []store.Event{
			play("A", 1, day(2021, 1, 1), nil),
			play("B", 2, day(2021, 5, 1), nil),
			play("A", 1, day(2022, 1, 1), nil),
			play("C", 3, day(2022, 2, 1), nil),
			play("D", 4, day(2022, 3, 1), nil),
			play("D", 4, day(2022, 3, 2), nil),
		}}

		table := Diversity(ds)

		Convey("Then each year counts its distinct artists", func() {
			So(table.Count(2021), ShouldEqual, 2)
			So(table.Count(2022), ShouldEqual, 3)
		})

		Convey("Then a year without data counts zero", func() {
			So(table.Count(2023), ShouldEqual, 0)
		})

		Convey("When a ranking extends the span to 2024", func() {
			ds.Rankings = []store.RankingRecord{ranked("E", 2024, 1)}
			table := Diversity(ds)

			Convey("Then the gap year is reported as zero rather than omitted", func() {
				So(len(table.Rows), ShouldEqual, 4)
				So(table.Rows[2], ShouldResemble, YearCount{Year: 2023})
				So(table.Rows[3].RankedArtists, ShouldEqual, 1)
			})
		})
	})

	Convey("Given no data", t, func() {
		table := Diversity(Dataset{})

		Convey("Then the table is empty and lookups return zero", func() {
			So(table.Rows, ShouldBeEmpty)
			So(table.Count(2020), ShouldEqual, 0)
		})
	})
}

func TestDimensionBreakdown(t *testing.T) {
	Convey("Given rankings across dimensions in two years", t, func() {
		ds := Dataset{Rankings: []store.RankingRecord{
			{Artist: "Zach Bryan", Year: 2023, Dimension: "country", Rank: 1, Songs: 3, MeanRank: 4},
			{Artist: "Morgan Wade", Year: 2023, Dimension: "country", Rank: 2},
			{Artist: "Bon Iver", Year: 2023, Dimension: "indie", Rank: 5},
			{Artist: "Bon Iver", Year: 2022, Dimension: "indie", Rank: 1},
		}}

		rows := DimensionBreakdown(ds)

		Convey("Then each year's songs are split by dimension", func() {
			So(len(rows), ShouldEqual, 3)
			So(rows[0], ShouldResemble, DimensionShare{Year: 2022, Dimension: "indie", Songs: 1, Share: 1})
			So(rows[1], ShouldResemble, DimensionShare{Year: 2023, Dimension: "country", Songs: 4, Share: 0.8})
			So(rows[2].Dimension, ShouldEqual, "indie")
			So(rows[2].Share, ShouldAlmostEqual, 0.2)
		})

		Convey("Then the snapshot carries the breakdown", func() {
			So(Compute(ds, DefaultOptions()).Dimensions, ShouldResemble, rows)
		})
	})

	Convey("Given no rankings", t, func() {
		Convey("Then the breakdown is empty", func() {
			So(DimensionBreakdown(Dataset{}), ShouldBeEmpty)
		})
	})
}

func TestPersistence(t *testing.T) {
	Convey("Given an artist present in 2020, 2021 and 2023 across both sources", t, func() {
		ds := Dataset{
			Events: []store.Event{
				play("Bon Iver", 1, day(2020, 6, 1), nil),
				play("Bon Iver", 1, day(2023, 6, 1), nil),
				play("Zach Bryan", 2, day(2023, 6, 1), nil),
			},
			Rankings: []store.RankingRecord{ranked("Bon Iver", 2021, 3)},
		}

		result := Persistence(ds)

		Convey("Then it persists for three years listed in order", func() {
			So(result[0].Artist, ShouldEqual, "Bon Iver")
			So(result[0].Count, ShouldEqual, 3)
			So(result[0].Years, ShouldResemble, []int{2020, 2021, 2023})
		})

		Convey("Then less persistent artists follow", func() {
			So(len(result), ShouldEqual, 2)
			So(result[1].Count, ShouldEqual, 1)
		})
	})
}

func TestPeakYears(t *testing.T) {
	Convey("Given an artist with the same score in two years", t, func() {
		ds := Dataset{Events: []store.Event{
			play("A", 1, day(2021, 1, 1), nil),
			play("A", 1, day(2021, 1, 2), nil),
			play("A", 1, day(2020, 1, 1), nil),
			play("A", 1, day(2020, 1, 2), nil),
		}}

		Convey("Then the earlier year is the peak", func() {
			peaks := PeakYears(ds, nil)
			So(len(peaks), ShouldEqual, 1)
			So(peaks[0].Year, ShouldEqual, 2020)
			So(peaks[0].Score, ShouldEqual, 2)
		})
	})

	Convey("Given plays in one year and a top ranking in another", t, func() {
		ds := Dataset{
			Events: []store.Event{
				play("A", 1, day(2020, 1, 1), nil),
				play("A", 1, day(2020, 1, 2), nil),
				play("A", 1, day(2020, 1, 3), nil),
				play("A", 1, day(2020, 1, 4), nil),
			},
			Rankings: []store.RankingRecord{ranked("A", 2021, 1)},
		}

		Convey("Then the default score weighs one song at rank 1 as six plays", func() {
			peak, err := Compute(ds, DefaultOptions()).PeakFor("a")
			So(err, ShouldBeNil)
			So(peak.Year, ShouldEqual, 2021)
			So(peak.Score, ShouldEqual, 6)
		})

		Convey("Then a plays-only score picks the listening year", func() {
			playsOnly := func(a YearActivity) float64 { return float64(a.Plays) }
			So(PeakYears(ds, playsOnly)[0].Year, ShouldEqual, 2020)
		})

		Convey("Then ranks past the ceiling add nothing", func() {
			score := WeightedScore(Weights{RankWeight: 1, RankCeiling: 10})
			So(score(YearActivity{Ranks: []float64{11, 40}}), ShouldEqual, 0)
			So(score(YearActivity{Ranks: []float64{10}}), ShouldAlmostEqual, 0.1)
		})
	})

	Convey("Given one song at rank 1 in 2022 and four songs around rank 11 in 2023", t, func() {
		ds := Dataset{Rankings: []store.RankingRecord{
			ranked("Zach Bryan", 2022, 1),
			{Artist: "Zach Bryan", Year: 2023, Dimension: "country", Rank: 10, Songs: 4, MeanRank: 11.5},
		}}

		Convey("Then the year with more ranked songs is the peak", func() {
			peaks := PeakYears(ds, nil)
			So(len(peaks), ShouldEqual, 1)
			So(peaks[0].Year, ShouldEqual, 2023)
			So(peaks[0].Score, ShouldAlmostEqual, 7.95)
		})

		Convey("Then a rank-only score still prefers the top song", func() {
			score := WeightedScore(Weights{RankWeight: 1, RankCeiling: 50})
			So(PeakYears(ds, score)[0].Year, ShouldEqual, 2022)
		})
	})
}

func TestStability(t *testing.T) {
	Convey("Given a consistent artist, a varied artist and a sparse artist", t, func() {
		var events []store.Event
		// Identical sound, sessions spread over the year.
		events = append(events,
			play("Steady", 1, day(2022, 1, 1), feat(0.5)),
			play("Steady", 2, day(2022, 6, 1), feat(0.5)),
			play("Steady", 3, day(2022, 12, 1), feat(0.5)),
		)
		// Very different tracks, all in one evening.
		evening := day(2022, 3, 1)
		events = append(events,
			play("Moody", 4, evening, feat(0.0)),
			play("Moody", 5, evening.Add(5*time.Minute), feat(1.0)),
			play("Moody", 6, evening.Add(10*time.Minute), feat(0.2)),
		)
		// Only two featured tracks.
		events = append(events,
			play("Sparse", 7, day(2022, 2, 1), feat(0.3)),
			play("Sparse", 8, day(2022, 9, 1), feat(0.6)),
			play("Sparse", 9, day(2022, 9, 2), nil),
		)
		ds := Dataset{Events: events}

		report := Stability(ds, DefaultStabilityOptions())

		Convey("Then every index lies in [0,1]", func() {
			So(len(report.Artists), ShouldEqual, 2)
			for _, a := range report.Artists {
				So(a.Index, ShouldBeBetweenOrEqual, 0, 1)
			}
			So(report.Global.Index, ShouldBeBetweenOrEqual, 0, 1)
			So(report.Global.Insufficient, ShouldBeFalse)
		})

		Convey("Then the consistent artist reads as identity and the varied one as mood", func() {
			snap := Compute(ds, DefaultOptions())
			steady, err := snap.StabilityFor("steady")
			So(err, ShouldBeNil)
			So(steady.Index, ShouldEqual, 1)
			So(steady.Sessions, ShouldEqual, 3)

			moody, err := snap.StabilityFor("Moody")
			So(err, ShouldBeNil)
			So(moody.Index, ShouldEqual, 0)
			So(moody.Sessions, ShouldEqual, 1)
		})

		Convey("Then the sparse artist is reported as insufficient", func() {
			So(report.Insufficient, ShouldResemble, []InsufficientArtist{{Artist: "Sparse", Key: "sparse", Tracks: 2}})

			_, err := Compute(ds, DefaultOptions()).StabilityFor("Sparse")
			So(errors.Is(err, ErrInsufficientData), ShouldBeTrue)
		})
	})

	Convey("Given an artist with no variance at all", t, func() {
		at := day(2022, 3, 1)
		ds := Dataset{Events: []store.Event{
			play("Flat", 1, at, feat(0.4)),
			play("Flat", 2, at.Add(time.Minute), feat(0.4)),
			play("Flat", 3, at.Add(2*time.Minute), feat(0.4)),
		}}

		Convey("Then the index sits at the midpoint", func() {
			So(Stability(ds, StabilityOptions{}).Artists[0].Index, ShouldEqual, 0.5)
		})
	})

	Convey("Given no events", t, func() {
		report := Stability(Dataset{}, DefaultStabilityOptions())

		Convey("Then the global index is marked insufficient", func() {
			So(report.Artists, ShouldBeEmpty)
			So(report.Global.Insufficient, ShouldBeTrue)
		})
	})
}

func TestCrossSourceJoin(t *testing.T) {
	Convey("Given live artists and rankings spelled differently", t, func() {
		ds := Dataset{
			Events: []store.Event{
				play("Bon Iver", 1, day(2022, 1, 1), nil),
				play("Zach Bryan", 2, day(2022, 1, 1), nil),
				play("Morgan Wade", 3, day(2022, 1, 1), nil),
			},
			Rankings: []store.RankingRecord{
				ranked("bon iver ", 2021, 1),
				ranked("Zach Bryann", 2021, 2),
				ranked("Morgan Wallen", 2021, 3),
			},
		}

		snap := Compute(ds, DefaultOptions())

		Convey("Then normalized and near-identical names join the live artist", func() {
			years := map[string][]int{}
			for _, p := range snap.Persistence {
				years[p.Key] = p.Years
			}
			So(years["bon iver"], ShouldResemble, []int{2021, 2022})
			So(years["zach bryan"], ShouldResemble, []int{2021, 2022})
			So(snap.Aliases, ShouldResemble, map[string]string{"zach bryann": "zach bryan"})
		})

		Convey("Then different artists with similar names stay apart", func() {
			So(snap.Diversity.Count(2021), ShouldEqual, 3)
			peak, err := snap.PeakFor("Morgan Wallen")
			So(err, ShouldBeNil)
			So(peak.Year, ShouldEqual, 2021)
		})

		Convey("Then disabling fuzzy matching keeps the misspelling separate", func() {
			opts := DefaultOptions()
			opts.AliasThreshold = 0
			So(Compute(ds, opts).Diversity.Count(2021), ShouldEqual, 3)
			So(len(Compute(ds, opts).Persistence), ShouldEqual, 5)
		})

		Convey("Then computing twice gives the same snapshot", func() {
			So(Compute(ds, DefaultOptions()), ShouldResemble, snap)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a store with events and rankings over several years", t, func() {
		s, err := store.New(filepath.Join(t.TempDir(), "metrics.db"))
		So(err, ShouldBeNil)
		defer s.Close()
		ctx := context.Background()

		artistID, err := s.UpsertArtist(ctx, store.ArtistByName("Bon Iver"))
		So(err, ShouldBeNil)
		trackID, err := s.UpsertTrack(ctx, store.TrackIdentity{Identity: "name:holocene"}, artistID, feat(0.5))
		So(err, ShouldBeNil)
		for _, at := range []time.Time{day(2020, 1, 1), day(2021, 1, 1), day(2022, 1, 1)} {
			_, err := s.RecordListeningEvent(ctx, trackID, at, store.SourceLive)
			So(err, ShouldBeNil)
		}
		for _, year := range []int{2019, 2021, 2022} {
			So(s.UpsertRankingRecord(ctx, ranked("Bon Iver", year, 1)), ShouldBeNil)
		}

		Convey("When loading 2021 only", func() {
			ds, err := Load(ctx, s, day(2021, 1, 1).Truncate(24*time.Hour), time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
			So(err, ShouldBeNil)

			Convey("Then only that year's events and rankings are included", func() {
				So(len(ds.Events), ShouldEqual, 1)
				So(len(ds.Rankings), ShouldEqual, 1)
				So(ds.Rankings[0].Year, ShouldEqual, 2021)
				So(ds.Events[0].Features, ShouldNotBeNil)
			})
		})
	})
}
