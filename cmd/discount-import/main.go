// Command discount-import bulk-loads discount codes from gzip-compressed CSV
// files into the discount_codes table.
//
// Each line is CODE,TYPE,VALUE,MINIMUM,MAX_USES,EXPIRES_AT. MINIMUM, MAX_USES
// and EXPIRES_AT may be empty. Lines starting with # are comments. Invalid
// lines are counted and skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/discount"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const progressEvery = 10_000

// Upserter stores one discount code.
type Upserter interface {
	Upsert(ctx context.Context, c discount.Code) error
}

type stats struct {
	imported atomic.Int64
	skipped  atomic.Int64
}

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "concurrent database writers")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		lg.Fatal("List input files", zap.Error(err))
	}
	if len(files) == 0 {
		lg.Info("No input files", zap.String("dir", dataDir))
		return
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	var st stats
	if err := importFiles(ctx, lg, postgres.NewDiscountRepository(pool), files, workers, &st); err != nil {
		lg.Fatal("Import failed", zap.Error(err))
	}
	lg.Info("Import completed",
		zap.Int64("imported", st.imported.Load()),
		zap.Int64("skipped", st.skipped.Load()),
	)
}

// importFiles streams every file concurrently into a bounded pool of writers.
func importFiles(ctx context.Context, lg *zap.Logger, repo Upserter, files []string, workers int, st *stats) error {
	if workers < 1 {
		workers = 1
	}
	codes := make(chan discount.Code, workers*64)

	writers, wctx := errgroup.WithContext(ctx)
	for range workers {
		writers.Go(func() error {
			for c := range codes {
				if err := repo.Upsert(wctx, c); err != nil {
					return errors.Wrapf(err, "upsert %s", c.Code)
				}
				if n := st.imported.Add(1); n%progressEvery == 0 {
					lg.Info("Import progress", zap.Int64("imported", n))
				}
			}
			return nil
		})
	}

	// Readers stop as soon as a writer fails.
	readers, rctx := errgroup.WithContext(wctx)
	for _, path := range files {
		readers.Go(func() error {
			return readFile(rctx, lg, path, codes, st)
		})
	}

	readErr := readers.Wait()
	close(codes)
	if err := writers.Wait(); err != nil {
		return err
	}
	return readErr
}

func readFile(ctx context.Context, lg *zap.Logger, path string, out chan<- discount.Code, st *stats) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		c, err := parseLine(text)
		if err != nil {
			st.skipped.Add(1)
			lg.Debug("Skipping line", zap.String("file", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// parseLine parses CODE,TYPE,VALUE,MINIMUM,MAX_USES,EXPIRES_AT.
func parseLine(line string) (discount.Code, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return discount.Code{}, errors.Errorf("want 6 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	c := discount.Code{
		Code:   discount.Normalize(fields[0]),
		Type:   discount.Type(strings.ToUpper(fields[1])),
		Active: true,
	}
	if c.Code == "" {
		return discount.Code{}, errors.New("empty code")
	}
	if !c.Type.Valid() {
		return discount.Code{}, errors.Errorf("unknown type %q", fields[1])
	}

	value, err := decimal.NewFromString(fields[2])
	if err != nil {
		return discount.Code{}, errors.Wrap(err, "value")
	}
	if !value.IsPositive() {
		return discount.Code{}, errors.New("value must be positive")
	}
	if c.Type == discount.Percentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return discount.Code{}, errors.New("percentage above 100")
	}
	c.Value = value

	if fields[3] != "" {
		minimum, err := decimal.NewFromString(fields[3])
		if err != nil {
			return discount.Code{}, errors.Wrap(err, "minimum")
		}
		c.MinimumAmount = &minimum
	}
	if fields[4] != "" {
		maxUses, err := strconv.Atoi(fields[4])
		if err != nil || maxUses < 0 {
			return discount.Code{}, errors.Errorf("invalid max uses %q", fields[4])
		}
		c.MaxUses = &maxUses
	}
	if fields[5] != "" {
		expires, err := time.Parse(time.RFC3339, fields[5])
		if err != nil {
			return discount.Code{}, errors.Wrap(err, "expires at")
		}
		c.ExpiresAt = &expires
	}
	c.Description = describe(c)
	return c, nil
}

func describe(c discount.Code) string {
	if c.Type == discount.Percentage {
		return c.Value.String() + "% off"
	}
	return "$" + c.Value.StringFixed(2) + " off"
}
