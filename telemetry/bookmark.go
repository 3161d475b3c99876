package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/exposure/config"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkPopulationCrash BookmarkType = "population_crash"
	BookmarkMassMortality   BookmarkType = "mass_mortality"
	BookmarkExtinction      BookmarkType = "extinction"
	BookmarkLoadSpike       BookmarkType = "load_spike"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector flags windows worth a closer look.
type BookmarkDetector struct {
	cfg config.BookmarksConfig

	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentPeak float64 // peak total members since the last crash
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int, cfg config.BookmarksConfig) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3
	}
	return &BookmarkDetector{
		cfg:         cfg,
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if b := bd.checkPopulationCrash(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if b := bd.checkMassMortality(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}
	if stats.Extinctions > 0 {
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkExtinction,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("%d instance(s) died out", stats.Extinctions),
		})
	}
	if b := bd.checkLoadSpike(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	if stats.Members > bd.recentPeak {
		bd.recentPeak = stats.Members
	}
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

func (bd *BookmarkDetector) checkPopulationCrash(stats WindowStats) *Bookmark {
	if bd.recentPeak == 0 {
		return nil
	}
	drop := 1 - stats.Members/bd.recentPeak
	if drop < bd.cfg.PopulationCrash.DropPercent || bd.recentPeak-stats.Members < bd.cfg.PopulationCrash.MinDrop {
		return nil
	}
	oldPeak := bd.recentPeak
	bd.recentPeak = stats.Members
	return &Bookmark{
		Type:        BookmarkPopulationCrash,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Members crashed %.0f%% from peak %.0f to %.0f", drop*100, oldPeak, stats.Members),
	}
}

func (bd *BookmarkDetector) checkMassMortality(stats WindowStats) *Bookmark {
	min := bd.cfg.MassMortality.MinDeaths
	if min <= 0 || stats.PoisoningDeaths() < min {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkMassMortality,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%.0f poisoning deaths (%.0f acute, %.0f chronic)", stats.PoisoningDeaths(), stats.AcuteDeaths, stats.ChronicDeaths),
	}
}

func (bd *BookmarkDetector) checkLoadSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}
	var total float64
	for _, h := range history {
		total += h.LoadP90
	}
	avg := total / float64(len(history))
	if avg <= 0 || stats.LoadP90 <= avg*2 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkLoadSpike,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("Load p90 %.3g is %.1fx rolling average (%.3g)", stats.LoadP90, stats.LoadP90/avg, avg),
	}
}
