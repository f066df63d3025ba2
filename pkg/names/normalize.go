// Package names canonicalizes free-text department and municipality names so
// casing and spelling variants collapse into a single grouping key.
package names

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sentinels returned for missing or blank names.
const (
	SinDepartamento = "Sin Departamento"
	SinMunicipio    = "Sin Municipio"
	SinEspecificar  = "SIN ESPECIFICAR"
)

// MemoLimit caps the memoized spellings per Normalizer. Colombia has about
// 1,100 municipalities, so the spellings found in the census tables fit well
// below it; query input beyond the cap is resolved without being stored.
const MemoLimit = 16384

// TitleCase upper-cases the first letter of every whitespace-separated token
// and lower-cases the remainder. Runs of whitespace collapse to one space.
func TitleCase(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	// Casers keep internal state and must not be shared between goroutines.
	up := cases.Upper(language.Spanish)
	low := cases.Lower(language.Spanish)
	for i, f := range fields {
		r, size := utf8.DecodeRuneInString(f)
		fields[i] = up.String(string(r)) + low.String(f[size:])
	}
	return strings.Join(fields, " ")
}

// Fold reduces a name to a comparison key: lowercase, no accents, and every
// run of punctuation or whitespace replaced by a single space
// ("Bogotá, D.C." -> "bogota d c").
func Fold(s string) string {
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(s),
	)
	if err != nil {
		stripped = strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Category canonicalizes a categorical label such as an age range or sex:
// trimmed, single-spaced, upper case. Blank labels become SinEspecificar.
func Category(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return SinEspecificar
	}
	return cases.Upper(language.Spanish).String(strings.Join(fields, " "))
}

// Normalizer maps raw names onto canonical names. It title-cases the input
// and then resolves known spelling variants through an alias table keyed by
// Fold. A Normalizer is immutable once built and safe for concurrent use.
type Normalizer struct {
	sentinel string
	aliases  map[string]string
	memo     sync.Map
	memoLen  atomic.Int64
}

// NewNormalizer builds a normalizer returning sentinel for blank input.
// Each alias canonical name is also registered under its own folded form,
// so accent-less spellings of a canonical name resolve to it.
func NewNormalizer(sentinel string, aliases ...Alias) *Normalizer {
	n := &Normalizer{
		sentinel: sentinel,
		aliases:  make(map[string]string),
	}
	for _, a := range aliases {
		canonical := TitleCase(a.Canonical)
		if canonical == "" {
			continue
		}
		n.aliases[Fold(canonical)] = canonical
		for _, v := range a.Variants {
			if k := Fold(v); k != "" {
				n.aliases[k] = canonical
			}
		}
	}
	return n
}

// Normalize returns the canonical form of raw.
func (n *Normalizer) Normalize(raw string) string {
	if v, ok := n.memo.Load(raw); ok {
		return v.(string)
	}
	out := n.resolve(raw)
	if n.memoLen.Load() < MemoLimit {
		if _, loaded := n.memo.LoadOrStore(raw, out); !loaded {
			n.memoLen.Add(1)
		}
	}
	return out
}

func (n *Normalizer) resolve(raw string) string {
	titled := TitleCase(raw)
	if titled == "" {
		return n.sentinel
	}
	if canonical, ok := n.aliases[Fold(titled)]; ok {
		return canonical
	}
	return titled
}

// NormalizeAny accepts loosely typed values from parsed rows. Anything that is
// not a string (nil included) yields the sentinel.
func (n *Normalizer) NormalizeAny(v any) string {
	switch s := v.(type) {
	case string:
		return n.Normalize(s)
	case *string:
		if s == nil {
			return n.sentinel
		}
		return n.Normalize(*s)
	default:
		return n.sentinel
	}
}

// Sentinel returns the value produced for blank input.
func (n *Normalizer) Sentinel() string { return n.sentinel }

// AliasCount returns the number of folded keys in the alias table.
func (n *Normalizer) AliasCount() int { return len(n.aliases) }

// Set pairs the department and municipality normalizers used together.
type Set struct {
	Department   *Normalizer
	Municipality *Normalizer
}

var (
	defaultOnce sync.Once
	defaultSet  Set
)

// Default returns the built-in normalizers.
func Default() Set {
	defaultOnce.Do(func() {
		defaultSet = Set{
			Department:   NewNormalizer(SinDepartamento, DepartmentAliases...),
			Municipality: NewNormalizer(SinMunicipio, MunicipalityAliases...),
		}
	})
	return defaultSet
}

// Department normalizes a department name with the built-in table.
func Department(raw string) string { return Default().Department.Normalize(raw) }

// Municipality normalizes a municipality name with the built-in table.
func Municipality(raw string) string { return Default().Municipality.Normalize(raw) }
