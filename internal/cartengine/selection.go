package cartengine

import (
	pkgerrors "github.com/mahendraputra/storefront-backend/pkg/errors"
)

// ErrBranchRequired is returned when a line without an assigned fulfillment
// branch is selected for checkout.
var ErrBranchRequired = pkgerrors.New(pkgerrors.CodeValidation, "assign a fulfillment branch before selecting")

// selectionSet tracks which resolved lines are marked for checkout, by
// structured identity. Invariant: every selected line shares a single
// selected branch. Order is kept so revalidation can deterministically keep
// the first survivor's branch.
type selectionSet struct {
	ids []LineIdentity
}

func (s *selectionSet) has(id LineIdentity) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

func (s *selectionSet) Identities() []LineIdentity {
	out := make([]LineIdentity, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *selectionSet) Empty() bool {
	return len(s.ids) == 0
}

// Branch returns the branch of any currently selected line, or "".
func (s *selectionSet) Branch(lines map[LineIdentity]*ResolvedLine) string {
	for _, id := range s.ids {
		if line := lines[id]; line != nil && line.SelectedBranchID != "" {
			return line.SelectedBranchID
		}
	}
	return ""
}

// CanSelect reports whether the line could join the current selection
// without violating the single-branch invariant.
func (s *selectionSet) CanSelect(line *ResolvedLine, lines map[LineIdentity]*ResolvedLine) bool {
	if line == nil || line.SelectedBranchID == "" {
		return false
	}
	current := s.Branch(lines)
	return current == "" || current == line.SelectedBranchID
}

// Select adds the line to the selection. Selecting across branches does not
// refuse: it replaces the whole selection with just this line and reports
// that the rest was cleared.
func (s *selectionSet) Select(line *ResolvedLine, lines map[LineIdentity]*ResolvedLine) (cleared bool, err error) {
	if line == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	if line.SelectedBranchID == "" {
		return false, ErrBranchRequired
	}

	current := s.Branch(lines)
	if current != "" && current != line.SelectedBranchID {
		s.ids = []LineIdentity{line.Identity}
		return true, nil
	}
	if !s.has(line.Identity) {
		s.ids = append(s.ids, line.Identity)
	}
	return false, nil
}

func (s *selectionSet) Unselect(id LineIdentity) {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return
		}
	}
}

// SelectAllInBranch selects every line assigned to the branch, replacing any
// selection held in a different branch. Returns whether any line matched and
// whether an existing cross-branch selection was cleared.
func (s *selectionSet) SelectAllInBranch(branchID string, ordered []*ResolvedLine, lines map[LineIdentity]*ResolvedLine) (selected, cleared bool) {
	if branchID == "" {
		return false, false
	}

	var matched []LineIdentity
	for _, line := range ordered {
		if line.SelectedBranchID == branchID {
			matched = append(matched, line.Identity)
		}
	}
	if len(matched) == 0 {
		return false, false
	}

	current := s.Branch(lines)
	if current != "" && current != branchID {
		s.ids = matched
		return true, true
	}

	for _, id := range matched {
		if !s.has(id) {
			s.ids = append(s.ids, id)
		}
	}
	return true, false
}

func (s *selectionSet) UnselectAllInBranch(branchID string, lines map[LineIdentity]*ResolvedLine) {
	if branchID == "" {
		return
	}
	kept := s.ids[:0]
	for _, id := range s.ids {
		line := lines[id]
		if line != nil && line.SelectedBranchID == branchID {
			continue
		}
		kept = append(kept, id)
	}
	s.ids = kept
}

func (s *selectionSet) Clear() {
	s.ids = nil
}

// Revalidate prunes the selection after the projection changed: identities
// that vanished, lines that lost their branch, and any survivor whose branch
// disagrees with the first survivor's are dropped. This is the last line of
// defense for the single-branch invariant.
func (s *selectionSet) Revalidate(lines map[LineIdentity]*ResolvedLine) []Notice {
	var kept []LineIdentity
	branch := ""
	dropped := 0

	for _, id := range s.ids {
		line := lines[id]
		if line == nil || line.SelectedBranchID == "" {
			dropped++
			continue
		}
		if branch == "" {
			branch = line.SelectedBranchID
		}
		if line.SelectedBranchID != branch {
			dropped++
			continue
		}
		kept = append(kept, id)
	}

	s.ids = kept
	if dropped == 0 {
		return nil
	}
	return []Notice{newNotice(NoticeSelectionPruned, "%d item(s) were removed from your checkout selection", dropped)}
}

func (s *selectionSet) snapshot() []LineIdentity {
	return s.Identities()
}

func (s *selectionSet) restore(ids []LineIdentity) {
	s.ids = make([]LineIdentity, len(ids))
	copy(s.ids, ids)
}
