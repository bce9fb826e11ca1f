package photo

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rehab/rehab/internal/platform/blobstore"
	"github.com/rehab/rehab/internal/platform/photoproc"
)

// Processor runs the photo pipeline on raw upload bytes.
type Processor interface {
	Process(ctx context.Context, data []byte, mode photoproc.Mode) (*photoproc.Result, error)
}

// degradeWarning is returned when the watermark could not be applied and
// the original photo was kept.
const degradeWarning = "watermark could not be applied; the original photo was stored"

// maxNameAttempts bounds retries when a generated filename is taken.
const maxNameAttempts = 3

type Service struct {
	store     blobstore.Store
	proc      Processor
	repo      UploadRepository
	logger    zerolog.Logger
	urlPrefix string
	maxSize   int64
	now       func() time.Time
	suffix    func() uint32
}

// NewService wires the upload flow. urlPrefix is the public path photos are
// served under; maxSize bounds the raw upload.
func NewService(store blobstore.Store, proc Processor, repo UploadRepository, urlPrefix string, maxSize int64, logger zerolog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = blobstore.MaxFileSize
	}
	return &Service{
		store:     store,
		proc:      proc,
		repo:      repo,
		logger:    logger.With().Str("component", "photo").Logger(),
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		maxSize:   maxSize,
		now:       time.Now,
		suffix:    randomSuffix,
	}
}

// MaxSize is the raw upload limit in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// randomSuffix returns a uniformly distributed number below 1e9.
func randomSuffix() uint32 {
	u := uuid.New()
	return binary.BigEndian.Uint32(u[:4]) % 1_000_000_000
}

// ValidateExtension checks the upload's original file name.
func ValidateExtension(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !AllowedExtensions[ext] {
		return "", ErrUnsupportedExtension
	}
	return ext, nil
}

// GenerateFilename builds "<unix-millis>-<9 digits><ext>".
func GenerateFilename(t time.Time, suffix uint32, ext string) string {
	return fmt.Sprintf("%d-%09d%s", t.UnixMilli(), suffix%1_000_000_000, ext)
}

// Upload stores the raw photo, runs the pipeline and replaces the stored
// file with the processed result. Undecodable input is deleted and returned
// as a *photoproc.DecodeError. Any other pipeline or replace failure keeps
// the raw file and reports Processed=false.
func (s *Service) Upload(ctx context.Context, req UploadRequest, r io.Reader) (*UploadResult, error) {
	if r == nil {
		return nil, ErrMissingFile
	}
	ext, err := ValidateExtension(req.OriginalName)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, blobstore.ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrMissingFile
	}

	name, meta, err := s.putRaw(ctx, data, ext)
	if err != nil {
		return nil, err
	}
	log := s.logger.With().Str("filename", name).Str("mode", req.Mode()).Logger()

	rec := &PhotoUpload{
		Filename:        name,
		OriginalName:    req.OriginalName,
		Mode:            req.Mode(),
		MedicalRecordNo: strPtr(req.MedicalRecordNo),
		ProjectName:     strPtr(req.ProjectName),
		UploadedBy:      strPtr(req.UploadedBy),
	}

	res, err := s.proc.Process(ctx, data, s.mode(req, rec))
	switch {
	case photoproc.IsDecodeError(err):
		if derr := s.store.Delete(context.WithoutCancel(ctx), name); derr != nil && !errors.Is(derr, blobstore.ErrBlobNotFound) {
			log.Warn().Err(derr).Msg("failed to delete undecodable upload")
		}
		log.Info().Err(err).Msg("rejected undecodable upload")
		return nil, err
	case err != nil:
		log.Warn().Err(err).Msg("photo processing failed; keeping original")
		rec.Warning = strPtr(degradeWarning)
	default:
		replaced, rerr := s.store.Replace(ctx, name, res.Data)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("failed to store processed photo; keeping original")
			rec.Warning = strPtr(degradeWarning)
			break
		}
		meta = replaced
		rec.Processed = true
		rec.Caption = strPtr(res.Caption)
		rec.Width = intPtr(res.Width)
		rec.Height = intPtr(res.Height)
		rec.Quality = intPtr(res.Quality)
	}
	rec.ContentType = meta.ContentType
	rec.Size = meta.Size

	out := &UploadResult{
		Filename:     name,
		OriginalName: req.OriginalName,
		Size:         meta.Size,
		URL:          s.URL(name),
		Processed:    rec.Processed,
	}
	if rec.Warning != nil {
		out.Warning = *rec.Warning
	}

	if s.repo != nil {
		if err := s.repo.Create(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn().Err(err).Msg("failed to record upload")
		} else {
			id := rec.ID
			out.ID = &id
		}
	}
	return out, nil
}

// putRaw stores data under a fresh generated name.
func (s *Service) putRaw(ctx context.Context, data []byte, ext string) (string, *blobstore.BlobMetadata, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := GenerateFilename(s.now(), s.suffix(), ext)
		meta, err := s.store.Put(ctx, name, bytes.NewReader(data))
		if errors.Is(err, blobstore.ErrBlobExists) {
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("store upload: %w", err)
		}
		return name, meta, nil
	}
	return "", nil, fmt.Errorf("store upload: %w after %d attempts", blobstore.ErrBlobExists, maxNameAttempts)
}

// mode builds the pipeline mode for req and records the treatment time.
func (s *Service) mode(req UploadRequest, rec *PhotoUpload) photoproc.Mode {
	if req.IsSignature {
		t := s.now()
		if req.TreatmentTime != nil {
			t = *req.TreatmentTime
		}
		rec.TreatmentTime = &t
		return photoproc.SignatureMode{
			MedicalRecordNo: req.MedicalRecordNo,
			TreatmentTime:   t,
			ProjectName:     req.ProjectName,
		}
	}
	var t time.Time
	if req.Timestamp != nil {
		t = *req.Timestamp
	}
	return photoproc.TimestampMode{Time: t}
}

// URL is the public path of a stored photo.
func (s *Service) URL(name string) string {
	return path.Join(s.urlPrefix, name)
}

func (s *Service) GetUpload(ctx context.Context, id uuid.UUID) (*PhotoUpload, error) {
	if s.repo == nil {
		return nil, ErrUploadNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListUploads(ctx context.Context, f ListFilter, limit, offset int) ([]*PhotoUpload, int, error) {
	if s.repo == nil {
		return []*PhotoUpload{}, 0, nil
	}
	return s.repo.List(ctx, f, limit, offset)
}
