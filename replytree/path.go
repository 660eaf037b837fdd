package replytree

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path is a sequence of zero-based child indices. An empty path names the anchor itself.
type Path []int

// String renders the path as dot separated indices.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Resolve follows p from anchor.
func Resolve(anchor *Node, p Path) (*Node, error) {
	if anchor == nil {
		return nil, ErrNotFound
	}
	n := anchor
	for _, idx := range p {
		if idx < 0 || idx >= len(n.Children) {
			return nil, ErrPathOutOfRange
		}
		n = n.Children[idx]
	}
	return n, nil
}

// PathOf returns the path of n relative to its top-level ancestor.
func PathOf(n *Node) Path {
	var rev []int
	for cur := n; cur.parent != nil; cur = cur.parent {
		p := cur.parent
		for i, c := range p.Children {
			if c == cur {
				rev = append(rev, i)
				break
			}
		}
	}
	out := make(Path, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// Root returns the top-level ancestor of n.
func Root(n *Node) *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// ParsePath accepts "0.2.1", "0,2,1" or a JSON array "[0,2,1]". Empty input is the empty path.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var p Path
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, ErrPathOutOfRange
		}
		return p, validate(p)
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == ',' || r == '/' })
	p := make(Path, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, ErrPathOutOfRange
		}
		p = append(p, v)
	}
	return p, validate(p)
}

func validate(p Path) error {
	for _, v := range p {
		if v < 0 {
			return ErrPathOutOfRange
		}
	}
	return nil
}
