package telemetry

import (
	"testing"

	"github.com/pthm-cable/exposure/config"
)

var testBookmarks = config.BookmarksConfig{
	PopulationCrash: config.PopulationCrashConfig{DropPercent: 0.3, MinDrop: 10},
	MassMortality:   config.MassMortalityConfig{MinDeaths: 50},
}

func hasBookmark(bms []Bookmark, typ BookmarkType) bool {
	for _, b := range bms {
		if b.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkPopulationCrash(t *testing.T) {
	bd := NewBookmarkDetector(10, testBookmarks)
	for i := 0; i < 3; i++ {
		if bms := bd.Check(WindowStats{WindowEndTick: int32(i), Members: 1000}); len(bms) != 0 {
			t.Fatalf("window %d: unexpected bookmarks %v", i, bms)
		}
	}

	bms := bd.Check(WindowStats{WindowEndTick: 3, Members: 600})
	if !hasBookmark(bms, BookmarkPopulationCrash) {
		t.Fatal("expected population_crash bookmark")
	}

	// The peak resets after a crash.
	if bms := bd.Check(WindowStats{WindowEndTick: 4, Members: 590}); hasBookmark(bms, BookmarkPopulationCrash) {
		t.Error("crash re-triggered without a new peak")
	}
}

func TestBookmarkSmallPopulationNoCrash(t *testing.T) {
	bd := NewBookmarkDetector(10, testBookmarks)
	bd.Check(WindowStats{Members: 20})
	if bms := bd.Check(WindowStats{Members: 12}); hasBookmark(bms, BookmarkPopulationCrash) {
		t.Error("drop below min_drop triggered a crash")
	}
}

func TestBookmarkMassMortality(t *testing.T) {
	bd := NewBookmarkDetector(10, testBookmarks)
	if bms := bd.Check(WindowStats{AcuteDeaths: 20, ChronicDeaths: 20, NaturalDeaths: 500}); hasBookmark(bms, BookmarkMassMortality) {
		t.Error("natural deaths counted as poisoning")
	}
	if bms := bd.Check(WindowStats{AcuteDeaths: 40, ChronicDeaths: 20}); !hasBookmark(bms, BookmarkMassMortality) {
		t.Error("expected mass_mortality bookmark")
	}
}

func TestBookmarkExtinctionAndLoadSpike(t *testing.T) {
	bd := NewBookmarkDetector(5, testBookmarks)
	for i := 0; i < 4; i++ {
		bd.Check(WindowStats{LoadP90: 1})
	}
	bms := bd.Check(WindowStats{LoadP90: 3, Extinctions: 1})
	if !hasBookmark(bms, BookmarkLoadSpike) {
		t.Error("expected load_spike bookmark")
	}
	if !hasBookmark(bms, BookmarkExtinction) {
		t.Error("expected extinction bookmark")
	}
}
