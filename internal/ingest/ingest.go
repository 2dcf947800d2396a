// Package ingest decides, image by image, whether a new face joins the
// database: blacklist screening first, then duplicate screening, then crop and
// enroll. All state lives in the Ingestor the caller owns.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/enroll/internal/catalog"
	"github.com/andresmejia3/enroll/internal/crop"
	"github.com/andresmejia3/enroll/internal/processed"
	"github.com/andresmejia3/enroll/internal/worker"
)

// Journal receives a copy of every decision. Failures are logged, never fatal.
type Journal interface {
	RecordOutcome(ctx context.Context, filename, outcome, matchedLabel, detail string) error
	RecordFace(ctx context.Context, label string, vec []float64) error
}

// Options are the per-variant knobs.
type Options struct {
	SourceDir   string
	DatabaseDir string
	Tolerance   float64
	Crop        crop.Options

	// RejectMultiFace rejects images with more than one detection instead of
	// enrolling the first face.
	RejectMultiFace bool
}

// Ingestor owns the accepted catalog and is its only mutator. It is not safe
// for concurrent use.
type Ingestor struct {
	Options

	Extractor catalog.Extractor
	Accepted  *catalog.Catalog
	Blacklist *catalog.Catalog // nil disables blacklist screening
	Processed *processed.Log   // nil disables the processed log
	Journal   Journal          // optional
	Logger    *slog.Logger

	// OnAlert is called for every blacklist hit, after it has been logged.
	OnAlert func(Result)

	stats Stats
}

// Process runs the full policy for one file in SourceDir and records it as
// processed. The returned error is non-nil only when the engine itself is
// gone or ctx is done; in that case nothing is recorded so the image is
// retried on the next run.
func (in *Ingestor) Process(ctx context.Context, name string) (Result, error) {
	res, err := in.evaluate(ctx, name)
	if err != nil {
		return res, err
	}

	in.record(ctx, res)
	return res, nil
}

// Stats returns a copy of the outcome counts so far.
func (in *Ingestor) Stats() Stats {
	out := make(Stats, len(in.stats))
	for k, v := range in.stats {
		out[k] = v
	}
	return out
}

func (in *Ingestor) logger() *slog.Logger {
	if in.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return in.Logger
}

func (in *Ingestor) evaluate(ctx context.Context, name string) (Result, error) {
	res := Result{Filename: name}
	log := in.logger().With("file", name)

	data, err := os.ReadFile(filepath.Join(in.SourceDir, name))
	if err != nil {
		log.Warn("error reading image", "err", err)
		return in.reject(res, RejectedError, fmt.Errorf("%w: %v", ErrDecode, err)), nil
	}
	img, err := crop.Decode(data)
	if err != nil {
		log.Warn("error loading image", "err", err)
		return in.reject(res, RejectedError, fmt.Errorf("%w: %v", ErrDecode, err)), nil
	}

	faces, err := in.Extractor.Extract(ctx, data)
	if err != nil {
		if errors.Is(err, worker.ErrWorkerCrashed) || ctx.Err() != nil {
			return res, err
		}
		log.Warn("error encoding image", "err", err)
		return in.reject(res, RejectedError, err), nil
	}
	res.Faces = len(faces)

	if len(faces) == 0 {
		log.Warn("no face found, marking as processed and skipping")
		return in.reject(res, RejectedNoFace, ErrNoFace), nil
	}
	if len(faces) > 1 && in.RejectMultiFace {
		log.Warn("found more than one face, skipping", "faces", len(faces))
		return in.reject(res, RejectedMultiFace, ErrMultiFace), nil
	}

	// Only the first detection is considered, even when more are present
	face := faces[0]

	if in.Blacklist != nil {
		if label, ok := in.Blacklist.Matches(face.Vec, in.Tolerance); ok {
			res.Outcome = RejectedBlacklist
			res.MatchedLabel = label
			log.Warn("BLACKLIST ALERT: person matches blacklisted file", "blacklisted", label)
			if in.OnAlert != nil {
				in.OnAlert(res)
			}
			return res, nil
		}
	}

	if label, ok := in.Accepted.Matches(face.Vec, in.Tolerance); ok {
		res.Outcome = RejectedDuplicate
		res.MatchedLabel = label
		log.Info("duplicate detected in main database, not adding", "matches", label)
		return res, nil
	}

	top, right, bottom, left := face.Box()
	rect := crop.Normalize(img, top, right, bottom, left, in.Crop)
	faceCrop, err := crop.Crop(img, rect)
	if err != nil {
		log.Error("could not crop face", "err", err)
		return in.reject(res, RejectedError, err), nil
	}
	dst := filepath.Join(in.DatabaseDir, name)
	if err := crop.Save(dst, faceCrop); err != nil {
		log.Error("could not save face to database", "path", dst, "err", err)
		return in.reject(res, RejectedError, err), nil
	}

	in.Accepted.Append(name, face.Vec)
	res.Outcome = Accepted
	log.Info("new person detected, added to database", "path", dst, "database_size", in.Accepted.Len())

	if in.Journal != nil {
		if err := in.Journal.RecordFace(ctx, name, face.Vec); err != nil {
			log.Error("journal: could not record face", "err", err)
		}
	}
	return res, nil
}

func (in *Ingestor) reject(res Result, o Outcome, err error) Result {
	res.Outcome = o
	res.Err = err
	return res
}

// record marks the file processed regardless of outcome.
func (in *Ingestor) record(ctx context.Context, res Result) {
	if in.stats == nil {
		in.stats = make(Stats)
	}
	in.stats[res.Outcome]++

	log := in.logger().With("file", res.Filename)
	if in.Processed != nil {
		if err := in.Processed.Mark(res.Filename); err != nil {
			log.Error("could not append to processed log", "log", in.Processed.Path(), "err", err)
		}
	}

	if in.Journal != nil {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		if err := in.Journal.RecordOutcome(ctx, res.Filename, res.Outcome.String(), res.MatchedLabel, detail); err != nil {
			log.Error("journal: could not record outcome", "err", err)
		}
	}
	log.Debug("marked as processed", "outcome", res.Outcome.String())
}
