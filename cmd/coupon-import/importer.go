package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CouponWriter stores accepted codes. It is called concurrently.
type CouponWriter interface {
	WriteCodes(ctx context.Context, codes []string) (int, error)
}

// Importer loads single-use coupon codes from gzip files, one code per line.
// A code printed in more than one file is a collision and is never imported.
type Importer struct {
	lg     *zap.Logger
	writer CouponWriter

	// Expected codes per file, sizes the bloom filters.
	Capacity  uint
	FPRate    float64
	BatchSize int
	MinLen    int
	MaxLen    int
}

// Stats summarises an import.
type Stats struct {
	Scanned    uint64
	Collisions int
	Inserted   int
}

func NewImporter(lg *zap.Logger, w CouponWriter) *Importer {
	return &Importer{
		lg:        lg,
		writer:    w,
		Capacity:  10_000_000,
		FPRate:    0.001,
		BatchSize: 1000,
		MinLen:    4,
		MaxLen:    32,
	}
}

// normalize returns the stored form of a line, or "" when it is not a code.
func (im *Importer) normalize(line string) string {
	code := strings.ToUpper(strings.TrimSpace(line))
	if len(code) < im.MinLen || len(code) > im.MaxLen {
		return ""
	}
	return code
}

// Run imports files in two concurrent passes. The first builds one bloom
// filter per file. The second streams every file again: codes absent from
// all other filters are written right away, codes that hit another filter
// are held and resolved exactly once every file has been read.
func (im *Importer) Run(ctx context.Context, files []string) (Stats, error) {
	if len(files) > bits.UintSize {
		return Stats{}, errors.Errorf("at most %d files per import", bits.UintSize)
	}

	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build filters")
	}

	var (
		mu    sync.Mutex
		stats Stats
		held  = make(map[string]uint)
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			bit := uint(1) << uint(i)
			batch := make([]string, 0, im.BatchSize)
			suspects := make(map[string]struct{})
			var scanned uint64

			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				n, err := im.writer.WriteCodes(gctx, batch)
				if err != nil {
					return errors.Wrap(err, "write codes")
				}
				mu.Lock()
				stats.Inserted += n
				mu.Unlock()
				batch = batch[:0]
				return nil
			}

			err := streamCodes(gctx, path, im.normalize, func(code string) error {
				scanned++
				for j, f := range filters {
					if j != i && f.TestString(code) {
						suspects[code] = struct{}{}
						return nil
					}
				}
				batch = append(batch, code)
				if len(batch) >= im.BatchSize {
					return flush()
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			if err := flush(); err != nil {
				return err
			}

			mu.Lock()
			stats.Scanned += scanned
			for code := range suspects {
				held[code] |= bit
			}
			mu.Unlock()

			im.lg.Info("File scanned",
				zap.String("file", path),
				zap.Uint64("codes", scanned),
				zap.Int("suspects", len(suspects)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// Bloom hits include false positives; only codes seen in two files for
	// real are collisions.
	var cleared []string
	for code, mask := range held {
		if bits.OnesCount(mask) >= 2 {
			stats.Collisions++
			continue
		}
		cleared = append(cleared, code)
	}
	for start := 0; start < len(cleared); start += im.BatchSize {
		end := min(start+im.BatchSize, len(cleared))
		n, err := im.writer.WriteCodes(ctx, cleared[start:end])
		if err != nil {
			return stats, errors.Wrap(err, "write cleared codes")
		}
		stats.Inserted += n
	}
	return stats, nil
}

func (im *Importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.Capacity, im.FPRate)
			err := streamCodes(ctx, path, im.normalize, func(code string) error {
				filter.AddString(code)
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamCodes calls fn for every code in a gzip file. Lines that normalize
// to "" are skipped.
func streamCodes(ctx context.Context, path string, normalize func(string) string, fn func(code string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := normalize(scanner.Text())
		if code == "" {
			continue
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	return scanner.Err()
}
