package resolver

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// parseVersion reports whether target is an exact semantic version (not a
// range), mirroring the teacher's NewSemverConstraint special-casing of a
// bare *semver.Version in constraints.go.
func parseVersion(target string) (*semver.Version, bool) {
	if target == "" || target == "*" {
		return nil, false
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(target, "v"))
	if err != nil {
		return nil, false
	}
	return v, true
}

// parseConstraint parses target as a semver range. Wildcards are treated as
// unconstrained.
func parseConstraint(target string) (*semver.Constraints, bool) {
	if target == "" {
		return nil, false
	}
	if target == "*" {
		c, _ := semver.NewConstraint(">=0.0.0-0")
		return c, true
	}
	c, err := semver.NewConstraint(target)
	if err != nil {
		return nil, false
	}
	return c, true
}

// satisfies reports whether v satisfies the range expressed by target.
func satisfies(v *semver.Version, target string) bool {
	if exact, ok := parseVersion(target); ok {
		return v.Equal(exact)
	}
	c, ok := parseConstraint(target)
	if !ok {
		return false
	}
	return c.Check(v)
}

var comparatorToken = regexp.MustCompile(`(?:^|[\s,])(<=|>=|<|>|=)?\s*v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)`)

type cap struct {
	op string
	v  *semver.Version
}

// highestCap computes the §4.2 "highest-cap" of a range: the maximum version
// appearing among its comparator tokens (descending through AND/OR groups,
// which in practice just means scanning every token in the string), paired
// with that token's comparator prefix. Two ranges are considered to "share a
// cap" when both their highest-cap version and comparator prefix match.
//
// This intentionally only looks at the strongest (highest) bound, not the
// full range shape — see DESIGN.md's open question (b): two ranges sharing
// an upper bound but with incompatible lower bounds are still considered
// compatible. That's the teacher's behavior too, and spec.md says to
// preserve it.
func highestCap(target string) (cap, bool) {
	matches := comparatorToken.FindAllStringSubmatch(target, -1)
	if len(matches) == 0 {
		return cap{}, false
	}

	var best cap
	var have bool
	for _, m := range matches {
		op, vs := m[1], m[2]
		if op == "" {
			op = "="
		}
		v, err := semver.NewVersion(vs)
		if err != nil {
			continue
		}
		if !have || v.GreaterThan(best.v) {
			best = cap{op: op, v: v}
			have = true
		}
	}
	return best, have
}

func (c cap) equal(o cap) bool {
	return c.op == o.op && c.v.Equal(o.v)
}

// AreCompatible decides whether candidate and resolved — two Endpoints that
// refer to the same logical package (same RID) — can share a single
// resolved revision. See spec.md §4.2's decision table.
func AreCompatible(candidate, resolved *Endpoint) bool {
	if candidate.Target == resolved.Target {
		return true
	}

	cVer, cIsVer := parseVersion(candidate.Target)
	rVer, rIsVer := parseVersion(resolved.Target)

	if resolved.PkgMeta.Version != "" {
		v, ok := parseVersion(resolved.PkgMeta.Version)
		if !ok {
			return false
		}
		if cIsVer {
			return cVer.Equal(v)
		}
		c, ok := parseConstraint(candidate.Target)
		if !ok {
			return false
		}
		return c.Check(v)
	}

	switch {
	case cIsVer && rIsVer:
		return cVer.Equal(rVer)
	case cIsVer && !rIsVer:
		c, ok := parseConstraint(resolved.Target)
		return ok && c.Check(cVer)
	case !cIsVer && rIsVer:
		c, ok := parseConstraint(candidate.Target)
		return ok && c.Check(rVer)
	default:
		cap1, ok1 := highestCap(candidate.Target)
		cap2, ok2 := highestCap(resolved.Target)
		return ok1 && ok2 && cap1.equal(cap2)
	}
}
