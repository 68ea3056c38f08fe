package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQLSplitsOnLineEndingSemicolons(t *testing.T) {
	sql := "CREATE TABLE a (\n  id INT\n);\nCREATE TABLE b (\n  id INT\n);\n"
	stmts := splitSQL(sql)
	assert.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestSplitSQLKeepsTrailingStatementWithoutSemicolon(t *testing.T) {
	sql := "SELECT 1;\nSELECT 2"
	stmts := splitSQL(sql)
	require := assert.New(t)
	require.Len(stmts, 2)
	require.Equal("SELECT 2", stmts[1])
}

func TestSplitSQLIgnoresBlankInput(t *testing.T) {
	assert.Empty(t, splitSQL("\n\n   \n"))
}
