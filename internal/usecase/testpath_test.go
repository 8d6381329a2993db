package usecase

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pyrock/config"
	"pyrock/internal/domain"
)

const testFixture = `import time
from unittest import TestCase


class MyTestCase(TestCase):
    def test_long_running_task(self):
        time.sleep(1)

    def helper(self):
        pass


class OtherCase(TestCase):

    @classmethod
    def test_class_level(cls, arg):
        pass


def test_iam_alone():
    assert True
`

const fixturePath = "tests/fixtures/test_fixture.py"

// at returns the offset of the middle of the first occurrence of s.
func at(t *testing.T, s string) int {
	t.Helper()
	i := strings.Index(testFixture, s)
	require.GreaterOrEqual(t, i, 0, s)
	return i + len(s)/2
}

func TestGenerateTestPath(t *testing.T) {
	cases := []struct {
		name      string
		offset    string
		framework string
		want      string
	}{
		{"django class", "MyTestCase", config.FrameworkDjango, "tests.fixtures.test_fixture.MyTestCase"},
		{"django class method", "test_long_running_task", config.FrameworkDjango, "tests.fixtures.test_fixture.MyTestCase.test_long_running_task"},
		{"django standalone", "test_iam_alone", config.FrameworkDjango, "tests.fixtures.test_fixture.test_iam_alone"},
		{"pytest class", "MyTestCase", config.FrameworkPytest, "tests/fixtures/test_fixture.py::MyTestCase"},
		{"pytest class method", "test_long_running_task", config.FrameworkPytest, "tests/fixtures/test_fixture.py::MyTestCase::test_long_running_task"},
		{"pytest standalone", "test_iam_alone", config.FrameworkPytest, "tests/fixtures/test_fixture.py::test_iam_alone"},
		{"nearest preceding class owns the method", "test_class_level", config.FrameworkDjango, "tests.fixtures.test_fixture.OtherCase.test_class_level"},
		{"decorator line resolves to the next test", "@classmethod", config.FrameworkPytest, "tests/fixtures/test_fixture.py::OtherCase::test_class_level"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenerateTestPath(testFixture, fixturePath, at(t, tc.offset), tc.framework)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateTestPath_ClassWithoutBases(t *testing.T) {
	src := "class Plain:\n    def test_it(self):\n        pass\n"
	got, err := GenerateTestPath(src, "test_plain.py", 7, config.FrameworkPytest)
	require.NoError(t, err)
	assert.Equal(t, "test_plain.py::Plain", got)

	got, err = GenerateTestPath(src, "test_plain.py", strings.Index(src, "test_it"), config.FrameworkPytest)
	require.NoError(t, err)
	assert.Equal(t, "test_plain.py::Plain::test_it", got)
}

func TestGenerateTestPath_Errors(t *testing.T) {
	_, err := GenerateTestPath(testFixture, fixturePath, 0, "nose")
	assert.ErrorIs(t, err, ErrInvalidTestFramework)

	_, err = GenerateTestPath(testFixture, fixturePath, at(t, "assert True"), config.FrameworkDjango)
	assert.ErrorIs(t, err, ErrNoTestTarget)

	_, err = GenerateTestPath(testFixture, fixturePath, len(testFixture)+1, config.FrameworkDjango)
	assert.Error(t, err)
}

func TestGenerateTestPath_WindowsSeparators(t *testing.T) {
	got, err := GenerateTestPath(testFixture, `tests\fixtures\test_fixture.py`, at(t, "test_iam_alone"), config.FrameworkDjango)
	require.NoError(t, err)
	assert.Equal(t, "tests.fixtures.test_fixture.test_iam_alone", got)
}

func TestTestTargets(t *testing.T) {
	want := []domain.TestTarget{
		{Kind: "class", Name: "MyTestCase", Line: 5},
		{Kind: "method", Name: "test_long_running_task", Line: 6},
		{Kind: "class", Name: "OtherCase", Line: 13},
		{Kind: "method", Name: "test_class_level", Line: 16},
		{Kind: "method", Name: "test_iam_alone", Line: 20},
	}
	got := TestTargets(testFixture)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(domain.TestTarget{}, "Offset")); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	for _, target := range got {
		line := testFixture[target.Offset:]
		assert.Contains(t, line[:strings.IndexByte(line, '\n')], target.Name)
	}
}
