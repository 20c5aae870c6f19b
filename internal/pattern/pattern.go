// Package pattern matches keys against Redis-style glob patterns for the
// in-process engines. Compiled matchers are kept in a small ristretto cache
// since the same handful of patterns tends to be scanned repeatedly.
package pattern

import (
	"errors"
	"strings"

	rc "github.com/dgraph-io/ristretto"
	"github.com/gobwas/glob"
)

const defaultMaxPatterns = 1024

// Compiler turns patterns into matchers and memoizes them.
type Compiler struct {
	c *rc.Cache
}

// NewCompiler keeps at most maxPatterns compiled matchers; 0 => 1024.
func NewCompiler(maxPatterns int64) (*Compiler, error) {
	if maxPatterns < 0 {
		return nil, errors.New("pattern: negative cache size")
	}
	if maxPatterns == 0 {
		maxPatterns = defaultMaxPatterns
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: maxPatterns * 10,
		MaxCost:     maxPatterns,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Compiler{c: c}, nil
}

// Compile never fails: a malformed pattern is matched literally.
func (p *Compiler) Compile(pattern string) glob.Glob {
	if v, ok := p.c.Get(pattern); ok {
		if g, ok := v.(glob.Glob); ok {
			return g
		}
		p.c.Del(pattern)
	}
	g := compile(pattern)
	p.c.Set(pattern, g, 1)
	return g
}

// Match is Compile(pattern).Match(key).
func (p *Compiler) Match(pattern, key string) bool {
	return p.Compile(pattern).Match(key)
}

func (p *Compiler) Close() {
	p.c.Close()
}

func compile(pattern string) glob.Glob {
	g, err := glob.Compile(Translate(pattern))
	if err != nil {
		return glob.MustCompile(glob.QuoteMeta(pattern))
	}
	return g
}

// Translate rewrites Redis glob syntax into gobwas/glob syntax.
// Braces and commas have no meaning in Redis so they are escaped, and the
// Redis class negation "[^" becomes "[!". A leading '!' in a class is a
// literal to Redis, so it is escaped.
func Translate(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)

	inClass := false
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case ch == '\\':
			if i+1 < len(pattern) {
				b.WriteByte('\\')
				b.WriteByte(pattern[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		case inClass:
			if ch == ']' {
				inClass = false
			}
			b.WriteByte(ch)
		case ch == '[':
			inClass = true
			b.WriteByte('[')
			switch {
			case i+1 < len(pattern) && pattern[i+1] == '^':
				b.WriteByte('!')
				i++
			case i+1 < len(pattern) && pattern[i+1] == '!':
				b.WriteString(`\!`)
				i++
			}
		case ch == '{' || ch == '}' || ch == ',':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
