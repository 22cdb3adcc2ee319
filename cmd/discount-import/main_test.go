package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/discount"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		check   func(t *testing.T, c discount.Code)
		wantErr bool
	}{
		{
			name: "Full",
			line: "welcome10,percentage,10,50,100,2030-01-01T00:00:00Z",
			check: func(t *testing.T, c discount.Code) {
				assert.Equal(t, "WELCOME10", c.Code)
				assert.Equal(t, discount.Percentage, c.Type)
				assert.True(t, decimal.NewFromInt(10).Equal(c.Value))
				require.NotNil(t, c.MinimumAmount)
				assert.True(t, decimal.NewFromInt(50).Equal(*c.MinimumAmount))
				require.NotNil(t, c.MaxUses)
				assert.Equal(t, 100, *c.MaxUses)
				require.NotNil(t, c.ExpiresAt)
				assert.Equal(t, 2030, c.ExpiresAt.Year())
				assert.True(t, c.Active)
				assert.Equal(t, "10% off", c.Description)
			},
		},
		{
			name: "OptionalFieldsEmpty",
			line: "SAVE5, FIXED_AMOUNT, 5, , , ",
			check: func(t *testing.T, c discount.Code) {
				assert.Nil(t, c.MinimumAmount)
				assert.Nil(t, c.MaxUses)
				assert.Nil(t, c.ExpiresAt)
				assert.Equal(t, "$5.00 off", c.Description)
			},
		},
		{name: "TooFewFields", line: "A,PERCENTAGE,10", wantErr: true},
		{name: "UnknownType", line: "A,FREE_LOWEST,10,,,", wantErr: true},
		{name: "BadValue", line: "A,PERCENTAGE,ten,,,", wantErr: true},
		{name: "ZeroValue", line: "A,FIXED_AMOUNT,0,,,", wantErr: true},
		{name: "PercentOver100", line: "A,PERCENTAGE,150,,,", wantErr: true},
		{name: "NegativeMaxUses", line: "A,PERCENTAGE,5,,-1,", wantErr: true},
		{name: "BadExpiry", line: "A,PERCENTAGE,5,,,tomorrow", wantErr: true},
		{name: "EmptyCode", line: " ,PERCENTAGE,5,,,", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

type memUpserter struct {
	mu    sync.Mutex
	codes map[string]discount.Code
	err   error
}

func (m *memUpserter) Upsert(_ context.Context, c discount.Code) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[c.Code] = c
	return nil
}

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.csv.gz", "# header\nAAA1,PERCENTAGE,10,,,\nbroken line\nAAA2,FIXED_AMOUNT,5,20,3,\n"),
		writeGz(t, dir, "b.csv.gz", "BBB1,PERCENTAGE,15,,,\n\nBBB2,PERCENTAGE,500,,,\n"),
	}

	repo := &memUpserter{codes: map[string]discount.Code{}}
	var st stats
	require.NoError(t, importFiles(context.Background(), zap.NewNop(), repo, files, 2, &st))

	assert.EqualValues(t, 3, st.imported.Load())
	assert.EqualValues(t, 2, st.skipped.Load())
	assert.Contains(t, repo.codes, "AAA1")
	assert.Contains(t, repo.codes, "AAA2")
	assert.Contains(t, repo.codes, "BBB1")
}

func TestImportFiles_WriteError(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeGz(t, dir, "a.csv.gz", "AAA1,PERCENTAGE,10,,,\n")}

	repo := &memUpserter{err: errors.New("db down")}
	var st stats
	err := importFiles(context.Background(), zap.NewNop(), repo, files, 1, &st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestImportFiles_MissingFile(t *testing.T) {
	repo := &memUpserter{codes: map[string]discount.Code{}}
	var st stats
	err := importFiles(context.Background(), zap.NewNop(), repo, []string{"/nonexistent.csv.gz"}, 1, &st)
	assert.Error(t, err)
}
