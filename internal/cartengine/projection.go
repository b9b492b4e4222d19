package cartengine

// projection holds the ordered collection of resolved lines, indexed by the
// structured identity. The derived display key is not unique (ids may embed
// the legacy delimiters), so it is never used as a map key here; lookups by
// display key scan in order and take the first match.
type projection struct {
	lines []*ResolvedLine
	index map[LineIdentity]*ResolvedLine
}

func newProjection(lines []*ResolvedLine) *projection {
	p := &projection{
		lines: make([]*ResolvedLine, 0, len(lines)),
		index: make(map[LineIdentity]*ResolvedLine, len(lines)),
	}
	for _, line := range lines {
		if _, exists := p.index[line.Identity]; exists {
			// Identities are unique within a projection; keep the first.
			continue
		}
		p.lines = append(p.lines, line)
		p.index[line.Identity] = line
	}
	return p
}

func (p *projection) get(id LineIdentity) *ResolvedLine {
	return p.index[id]
}

// find resolves a display key to the first matching line in cart order.
func (p *projection) find(key string) *ResolvedLine {
	for _, line := range p.lines {
		if line.Identity.Key() == key {
			return line
		}
	}
	return nil
}

func (p *projection) ordered() []*ResolvedLine {
	return p.lines
}

func (p *projection) byIdentity() map[LineIdentity]*ResolvedLine {
	return p.index
}

func (p *projection) len() int {
	return len(p.lines)
}

// replaceLine swaps the stored line carrying the same identity, preserving
// order.
func (p *projection) replaceLine(line *ResolvedLine) {
	if _, ok := p.index[line.Identity]; !ok {
		return
	}
	for i, existing := range p.lines {
		if existing.Identity == line.Identity {
			p.lines[i] = line
			break
		}
	}
	p.index[line.Identity] = line
}

func (p *projection) removeLine(id LineIdentity) {
	if _, ok := p.index[id]; !ok {
		return
	}
	delete(p.index, id)
	for i, line := range p.lines {
		if line.Identity == id {
			p.lines = append(p.lines[:i], p.lines[i+1:]...)
			break
		}
	}
}

// clone deep-copies the projection for rollback snapshots.
func (p *projection) clone() *projection {
	copied := make([]*ResolvedLine, len(p.lines))
	for i, line := range p.lines {
		copied[i] = line.Clone()
	}
	return newProjection(copied)
}
