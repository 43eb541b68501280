package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/yourusername/text-forge/internal/tracker"
)

// Feed はポーラーのスナップショットを Bubble Tea のメッセージループへ渡します。
// 未読のスナップショットは最新のもので上書きされるため、Observe はブロックしません。
type Feed struct {
	ch chan tracker.Snapshot
}

// NewFeed は Feed を作成します。
func NewFeed() *Feed {
	return &Feed{ch: make(chan tracker.Snapshot, 1)}
}

// Observe は tracker.Observer として使います。
func (f *Feed) Observe(snap tracker.Snapshot) {
	for {
		select {
		case f.ch <- snap:
			return
		default:
		}
		// 読まれていない古いスナップショットを捨てる
		select {
		case <-f.ch:
		default:
		}
	}
}

type snapshotMsg tracker.Snapshot

// wait は次のスナップショットを1件待つコマンドです。
func (f *Feed) wait() tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		return snapshotMsg(<-f.ch)
	}
}
