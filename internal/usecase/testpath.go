package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pyrock/config"
	"pyrock/internal/domain"
)

var (
	ErrInvalidTestFramework = errors.New("invalid test framework")
	ErrNoTestTarget         = errors.New("could not generate test path")
)

var (
	// classLineRe matches a class declaration at the start of a line.
	classLineRe = regexp.MustCompile(`^class\s+([a-zA-Z_0-9]\w*)\s*[(:]`)

	// testFuncRe matches a complete test function signature, indented or not.
	testFuncRe = regexp.MustCompile(`(?im)^\s*def\s+(test_[a-zA-Z_0-9]\w*)\s*\([^\)]*\):`)

	// testMethodRe matches an indented test method taking self or cls.
	testMethodRe = regexp.MustCompile(`(?im)^ +def\s+(test_[a-zA-Z_0-9]\w*)\s*\(\s*(?:cls|self)\s*,?[^\)]*\):`)

	// classDeclRe matches complete class headers, with or without bases.
	classDeclRe = regexp.MustCompile(`(?im)^class\s+([a-zA-Z_0-9]\w*)(?:\([^\)]*\):|:)`)

	targetClassRe  = regexp.MustCompile(`(?im)^class\s+([a-zA-Z_0-9]\w*)\s*[(:]`)
	targetMethodRe = regexp.MustCompile(`(?im)^ *def\s+(test_[a-zA-Z_0-9]\w*)\s*\((?:[^\)]*\):)?`)
)

// GenerateTestPath returns the test node id for the declaration at offset in
// source. relPath is the file path relative to the test working directory,
// using forward slashes.
//
// When the line under offset declares a class the whole class is addressed.
// Otherwise the first test function at or after the start of that line is
// used; for a method the owning class is the closest class declared before
// it.
func GenerateTestPath(source, relPath string, offset int, framework string) (string, error) {
	if framework != config.FrameworkDjango && framework != config.FrameworkPytest {
		return "", fmt.Errorf("%w: %q", ErrInvalidTestFramework, framework)
	}
	if offset < 0 || offset > len(source) {
		return "", fmt.Errorf("offset %d outside of buffer", offset)
	}

	lineStart := strings.LastIndexByte(source[:offset], '\n') + 1
	lineEnd := len(source)
	if i := strings.IndexByte(source[lineStart:], '\n'); i >= 0 {
		lineEnd = lineStart + i
	}

	var className, methodName string
	if m := classLineRe.FindStringSubmatch(source[lineStart:lineEnd]); m != nil {
		className = m[1]
	} else {
		className, methodName = enclosingTest(source, lineStart)
	}

	if className == "" && methodName == "" {
		return "", ErrNoTestTarget
	}
	return formatTestPath(framework, relPath, className, methodName), nil
}

// enclosingTest finds the first test function starting at from and, for
// methods, the class that owns it.
func enclosingTest(source string, from int) (className, methodName string) {
	loc := testFuncRe.FindStringSubmatchIndex(source[from:])
	if loc == nil {
		return "", ""
	}
	begin := from + loc[0]
	text := source[begin : from+loc[1]]

	if m := testMethodRe.FindStringSubmatch(text); m != nil {
		methodName = m[1]
		for _, c := range classDeclRe.FindAllStringSubmatchIndex(source, -1) {
			if c[0] < begin {
				className = source[c[2]:c[3]]
			}
		}
		return className, methodName
	}
	return "", source[from+loc[2] : from+loc[3]]
}

func formatTestPath(framework, relPath, className, methodName string) string {
	relPath = strings.ReplaceAll(relPath, "\\", "/")
	sep := "::"
	path := relPath
	if framework == config.FrameworkDjango {
		sep = "."
		path = strings.ReplaceAll(strings.TrimSuffix(relPath, ".py"), "/", ".")
	}
	if className != "" {
		path += sep + className
	}
	if methodName != "" {
		path += sep + methodName
	}
	return path
}

// TestTargets lists class and test function declarations in source ordered by
// offset. These are the places a run-test action can be anchored.
func TestTargets(source string) []domain.TestTarget {
	var out []domain.TestTarget
	collect := func(re *regexp.Regexp, kind string) {
		for _, m := range re.FindAllStringSubmatchIndex(source, -1) {
			out = append(out, domain.TestTarget{
				Kind:   kind,
				Name:   source[m[2]:m[3]],
				Offset: m[0],
				Line:   strings.Count(source[:m[0]], "\n") + 1,
			})
		}
	}
	collect(targetClassRe, "class")
	collect(targetMethodRe, "method")

	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}
