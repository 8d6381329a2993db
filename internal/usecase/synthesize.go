package usecase

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"pyrock/internal/adapter/resolver"
	"pyrock/internal/domain"
)

// MinSelectionLength is the shortest selection an import lookup accepts.
const MinSelectionLength = 2

var (
	ErrSelectionTooShort = errors.New("select at least 2 characters")
	ErrNoCandidates      = errors.New("no imports found")
)

// lastImportRe matches a top-level import statement, including a
// parenthesized multi-line one.
var lastImportRe = regexp.MustCompile(`(?m)^(?:from[ \t]+\S+[ \t]+)?import[ \t]+(?:\([^()]*\)|.+)$`)

// CheckSelection validates and normalizes selected text.
func CheckSelection(selected string) (string, error) {
	selected = strings.TrimSpace(selected)
	if len([]rune(selected)) < MinSelectionLength {
		return "", ErrSelectionTooShort
	}
	return selected, nil
}

func fromCandidate(module, symbol string) domain.Candidate {
	from := "from " + module + " import"
	return domain.Candidate{DisplayKey: from + " " + symbol, FromPart: from, Symbol: symbol}
}

func bareCandidate(module string) domain.Candidate {
	stmt := "import " + module
	return domain.Candidate{DisplayKey: stmt, FromPart: stmt, Symbol: module}
}

// CandidatesFromIndex builds candidates from index entries whose final
// segment is exactly selected.
func CandidatesFromIndex(selected string, idx domain.SymbolIndex) []domain.Candidate {
	var out []domain.Candidate
	for _, path := range idx.Lookup(selected) {
		module, symbol := resolver.Split(path)
		if module == "" {
			out = append(out, bareCandidate(symbol))
		} else {
			out = append(out, fromCandidate(module, symbol))
		}
	}
	return out
}

// CandidatesFromDotted builds a candidate for a dotted selection such as
// "os.path.join". The module part must itself be indexed.
func CandidatesFromDotted(dotted string, r *resolver.Resolver) []domain.Candidate {
	module, symbol := resolver.Split(dotted)
	if module == "" || symbol == "" {
		return nil
	}
	if r.Has(dotted) {
		return []domain.Candidate{fromCandidate(module, symbol)}
	}
	if prefix, ok := r.Longest(dotted); ok && prefix == module {
		return []domain.Candidate{fromCandidate(module, symbol)}
	}
	return nil
}

// CandidatesFromLocations builds candidates from project definition sites.
// Only locations in .py files produce a candidate.
func CandidatesFromLocations(selected string, locs []domain.SymbolLocation) []domain.Candidate {
	var out []domain.Candidate
	for _, loc := range locs {
		name := strings.ReplaceAll(loc.DisplayName, "\\", "/")
		module, ok := strings.CutSuffix(name, ".py")
		if !ok || module == "" {
			continue
		}
		module = strings.TrimSuffix(module, "/__init__")
		out = append(out, fromCandidate(strings.ReplaceAll(module, "/", "."), selected))
	}
	return out
}

// MergeCandidates collapses candidates with the same statement and orders
// them: bare imports first, then fewer dots, then lexicographically.
func MergeCandidates(groups ...[]domain.Candidate) []domain.Candidate {
	byKey := make(map[string]domain.Candidate)
	for _, g := range groups {
		for _, c := range g {
			byKey[c.DisplayKey] = c
		}
	}
	out := make([]domain.Candidate, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsBare() != b.IsBare() {
			return a.IsBare()
		}
		da, db := strings.Count(a.DisplayKey, "."), strings.Count(b.DisplayKey, ".")
		if da != db {
			return da < db
		}
		return a.DisplayKey < b.DisplayKey
	})
	return out
}

var commentRe = regexp.MustCompile(`#[^\n]*`)

func existingStatementRe(fromPart string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(fromPart) + `(?:[ \t]+(?:\([^()]*\)|[^\n]*))?[ \t]*$`)
}

func symbolRe(symbol string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(symbol) + `\b`)
}

// ApplyCandidate computes the edit that imports c into buffer. It returns
// false when the buffer already imports the symbol.
func ApplyCandidate(buffer string, c domain.Candidate) (domain.Edit, bool) {
	head := c.FromPart
	if c.IsBare() {
		head = "import"
	}
	matches := existingStatementRe(c.FromPart).FindAllStringIndex(buffer, -1)
	sym := symbolRe(c.Symbol)
	for _, loc := range matches {
		if sym.MatchString(commentRe.ReplaceAllString(buffer[loc[0]+len(head):loc[1]], "")) {
			return domain.Edit{}, false
		}
	}
	if !c.IsBare() {
		for _, loc := range matches {
			if updated, ok := extendStatement(buffer[loc[0]:loc[1]], c.FromPart, c.Symbol); ok {
				return domain.Edit{Region: domain.Region{Begin: loc[0], End: loc[1]}, Text: updated}, true
			}
		}
	}

	stmt := c.DisplayKey
	all := lastImportRe.FindAllStringIndex(buffer, -1)
	if len(all) == 0 {
		return domain.Edit{Region: domain.Region{}, Text: stmt + "\n"}, true
	}
	end := all[len(all)-1][1]
	return domain.Edit{Region: domain.Region{Begin: end, End: end}, Text: "\n" + stmt}, true
}

// extendStatement adds symbol to an existing "from X import ..." statement.
func extendStatement(stmt, fromPart, symbol string) (string, bool) {
	rest := strings.TrimLeft(stmt[len(fromPart):], " \t")
	rest = strings.TrimRight(rest, " \t")
	prefix := fromPart + " "

	switch {
	case rest == "":
		return prefix + symbol, true

	case strings.HasPrefix(rest, "("):
		if !strings.HasSuffix(rest, ")") {
			return "", false
		}
		body := rest[:len(rest)-1]
		if !strings.Contains(rest, "\n") {
			inner := strings.TrimSpace(body[1:])
			inner = strings.TrimSpace(strings.TrimSuffix(inner, ","))
			if inner == "" {
				return prefix + "(" + symbol + ")", true
			}
			return prefix + "(" + inner + ", " + symbol + ")", true
		}
		body = strings.TrimRight(body, " \t\r\n")
		return prefix + withTrailingComma(body) + "\n" + detectIndent(rest) + symbol + ",\n)", true

	default:
		if i := strings.Index(rest, "#"); i >= 0 {
			before := rest[:i]
			trimmed := strings.TrimRight(before, " \t")
			ws := before[len(trimmed):]
			if ws == "" {
				ws = " "
			}
			return prefix + trimmed + ", " + symbol + ws + rest[i:], true
		}
		return prefix + rest + ", " + symbol, true
	}
}

// withTrailingComma ends the last entry of a multi-line import body with a
// comma, placed before a trailing comment on that line.
func withTrailingComma(body string) string {
	start := strings.LastIndexByte(body, '\n') + 1
	line, comment := body[start:], ""
	if i := strings.Index(line, "#"); i >= 0 {
		line, comment = line[:i], line[i:]
	}
	code := strings.TrimRight(line, " \t")
	ws := line[len(code):]
	if comment != "" && ws == "" {
		ws = " "
	}
	if !strings.HasSuffix(code, ",") && !strings.HasSuffix(code, "(") {
		code += ","
	}
	return body[:start] + code + ws + comment
}

// detectIndent returns the indentation of the entries in a multi-line
// parenthesized import: a tab, four spaces or nothing.
func detectIndent(text string) string {
	switch {
	case strings.Contains(text, "\t"):
		return "\t"
	case strings.Contains(text, "    "):
		return "    "
	default:
		return ""
	}
}
