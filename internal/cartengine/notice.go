package cartengine

import "fmt"

// NoticeKind labels a non-blocking, user-visible signal.
type NoticeKind string

const (
	NoticeQuantityClamped  NoticeKind = "quantity_clamped"
	NoticeSelectionCleared NoticeKind = "selection_cleared"
	NoticeSelectionPruned  NoticeKind = "selection_pruned"
	NoticeOrphansDropped   NoticeKind = "orphans_dropped"
)

// Notice is surfaced alongside an otherwise successful operation. It never
// blocks the operation itself.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

func newNotice(kind NoticeKind, format string, args ...any) Notice {
	return Notice{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
