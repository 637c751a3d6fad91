package institutions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const header = "ROR_LINK,full_name_in_English,acronym_EN,acronym_AGG,main_grouping\n"

func ids(tbl *Table) []string {
	out := make([]string, 0, len(tbl.Institutions))
	for _, inst := range tbl.Institutions {
		out = append(out, inst.ID)
	}
	return out
}

func TestLoad_MapsColumns(t *testing.T) {
	input := header +
		"https://ror.org/04dkp9463,University of Amsterdam,UvA,UVA,UNL\n"

	tbl, err := NewLoader(Options{Dedupe: true}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tbl.Institutions, 1)

	inst := tbl.Institutions[0]
	assert.Equal(t, "https://ror.org/04dkp9463", inst.ID)
	assert.Equal(t, "University of Amsterdam", inst.Name)
	assert.Equal(t, "UvA", inst.Acronym)
	assert.Equal(t, "UVA", inst.AcronymAgg)
	assert.Equal(t, "UNL", inst.Group)
	assert.Equal(t, 2, inst.Line)
	assert.Empty(t, tbl.MissingColumns)
}

func TestLoad_DedupeKeepsFirstInOrder(t *testing.T) {
	input := header +
		"R1,First,,,\n" +
		"R2,Second,,,\n" +
		"R1,First again,,,\n" +
		"R3,Third,,,\n" +
		"R2,Second again,,,\n"

	tbl, err := NewLoader(Options{Dedupe: true}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"R1", "R2", "R3"}, ids(tbl))
	assert.Equal(t, "First", tbl.Institutions[0].Name)
	assert.Equal(t, "Second", tbl.Institutions[1].Name)
	assert.Equal(t, 2, tbl.Duplicates)
	assert.False(t, tbl.DedupeSkipped)
}

func TestLoad_NoDedupeKeepsAll(t *testing.T) {
	input := header + "R1,a,,,\nR1,b,,,\n"

	tbl, err := NewLoader(Options{Dedupe: false}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R1"}, ids(tbl))
	assert.Zero(t, tbl.Duplicates)
}

func TestLoad_MissingIdentifierColumnIsDegraded(t *testing.T) {
	input := "ror,full_name_in_English\nR1,a\nR1,b\n"

	tbl, err := NewLoader(Options{Dedupe: true}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)

	assert.True(t, tbl.DedupeSkipped)
	assert.Equal(t, []string{"ROR_LINK"}, tbl.MissingColumns)
	require.Len(t, tbl.Institutions, 2)
	assert.Empty(t, tbl.Institutions[0].ID)
	assert.Equal(t, "b", tbl.Institutions[1].Name)
}

func TestLoad_OptionalColumnsAbsent(t *testing.T) {
	input := "ROR_LINK,full_name_in_English\nR1,Only name\n"

	tbl, err := NewLoader(Options{}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tbl.Institutions, 1)
	assert.Empty(t, tbl.Institutions[0].Acronym)
	assert.Empty(t, tbl.Institutions[0].Group)
	assert.Empty(t, tbl.MissingColumns)
}

func TestLoad_CustomIDColumn(t *testing.T) {
	input := "pid,full_name_in_English\nX,a\nX,b\n"

	tbl, err := NewLoader(Options{Dedupe: true, Columns: Columns{ID: "pid"}}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, ids(tbl))
}

func TestLoad_SemicolonBOMAndQuotes(t *testing.T) {
	input := "\xEF\xBB\xBFROR_LINK;full_name_in_English\n" +
		" R1 ;\"Vrije Universiteit; Amsterdam\"\n" +
		";;\n" +
		"R2;Universite\u0301 de Test\n"

	tbl, err := NewLoader(Options{Dedupe: true}, zap.NewNop()).Load(strings.NewReader(input))
	require.NoError(t, err)

	require.Equal(t, []string{"R1", "R2"}, ids(tbl))
	assert.Equal(t, "Vrije Universiteit; Amsterdam", tbl.Institutions[0].Name)
	// decomposed accent is normalised to the composed form
	assert.Equal(t, "Universit\u00e9 de Test", tbl.Institutions[1].Name)
}

func TestLoad_Empty(t *testing.T) {
	_, err := NewLoader(Options{}, zap.NewNop()).Load(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nl.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"R1,a,,,\n"), 0o600))

	tbl, err := NewLoader(Options{Dedupe: true}, nil).LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, tbl.Institutions, 1)

	_, err = NewLoader(Options{}, nil).LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
