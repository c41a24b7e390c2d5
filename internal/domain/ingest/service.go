package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/domain/program"
	"github.com/beanphv/QBR-Dashboard/internal/platform/blobstore"
)

// Store is the part of the program service ingestion writes through.
type Store interface {
	RegisterPeriod(ctx context.Context, p *program.Period) error
	UpsertHospital(ctx context.Context, pid, name string) (*program.Hospital, error)
	HospitalByPID(ctx context.Context, pid string) (*program.Hospital, error)
	HospitalByName(ctx context.Context, name string) (*program.Hospital, error)
	UpsertPharmacy(ctx context.Context, pid, name string, hospitalID uuid.UUID) (*program.Pharmacy, error)
	PharmacyByPID(ctx context.Context, pid string) (*program.Pharmacy, error)
	SaveHospitalMetrics(ctx context.Context, m *program.HospitalMetrics) error
	SaveHospitalQualification(ctx context.Context, q *program.HospitalQualification) error
	SavePharmacyQualification(ctx context.Context, q *program.PharmacyQualification) error
	SavePharmacyMetrics(ctx context.Context, m *program.PharmacyMetrics) error
}

// TxFunc runs fn in a transaction. The pharmacy upsert and its
// qualification row commit together; nothing wider is transactional.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// UploadRequest is one workbook submission.
type UploadRequest struct {
	UploaderID string
	Quarter    string
	Year       string
	Filename   string
	// Sheet names the sheet a CSV file holds.
	Sheet string
	File  io.Reader
}

// Service is the upload orchestrator.
type Service struct {
	store   Store
	uploads UploadRepository
	tx      TxFunc
	archive blobstore.BlobStore
	logger  zerolog.Logger
}

func NewService(store Store, uploads UploadRepository, tx TxFunc, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = passthroughTx
	}
	return &Service{store: store, uploads: uploads, tx: tx, logger: logger.With().Str("component", "ingest").Logger()}
}

// SetArchive keeps a copy of every uploaded file under its upload id.
func (s *Service) SetArchive(a blobstore.BlobStore) {
	s.archive = a
}

func (s *Service) validate(req UploadRequest) (program.Period, error) {
	if req.File == nil || req.Filename == "" || strings.TrimSpace(req.Quarter) == "" || strings.TrimSpace(req.Year) == "" {
		return program.Period{}, fmt.Errorf("%w: Missing required fields", ErrInvalidRequest)
	}
	if req.UploaderID == "" {
		return program.Period{}, fmt.Errorf("%w: uploader is required", ErrInvalidRequest)
	}
	if req.Sheet != "" && !IsRecognizedSheet(req.Sheet) {
		return program.Period{}, fmt.Errorf("%w: unrecognized sheet %q", ErrInvalidRequest, req.Sheet)
	}
	period, err := program.ParsePeriod(req.Quarter, req.Year)
	if err != nil {
		return program.Period{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return period, nil
}

// Ingest records the upload, reads and maps the workbook, and writes every
// resolvable row. Rows whose parent hospital or pharmacy cannot be resolved
// are skipped and not counted. The upload ends approved with the processed
// count however many rows were skipped. A persistence error aborts the run
// and leaves the upload pending.
//
// Ingest is not cancelled by ctx: once accepted, an upload runs to the end.
func (s *Service) Ingest(ctx context.Context, req UploadRequest) (*Result, error) {
	period, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	if err := s.store.RegisterPeriod(ctx, &period); err != nil {
		return nil, fmt.Errorf("register period %s: %w", period.Label(), err)
	}

	rec := &UploadRecord{
		UploadedBy: req.UploaderID,
		PeriodID:   &period.ID,
		Quarter:    period.Quarter,
		Year:       period.Year,
		Filename:   req.Filename,
		Status:     StatusPending,
	}
	if err := s.uploads.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}
	log := s.logger.With().Str("upload_id", rec.ID.String()).Str("period", period.Label()).Logger()
	log.Info().Str("filename", req.Filename).Str("uploaded_by", req.UploaderID).Msg("upload started")

	file, err := s.keep(ctx, log, rec, req)
	var wb Workbook
	if err == nil {
		wb, err = ReadWorkbook(file, req.Filename, req.Sheet)
	}
	if err != nil {
		if _, terr := s.uploads.Transition(ctx, rec.ID, StatusPending, StatusFailed, 0); terr != nil {
			log.Error().Err(terr).Msg("marking upload failed")
		}
		log.Warn().Err(err).Msg("workbook could not be read")
		return nil, fmt.Errorf("upload %s: %w", rec.ID, err)
	}
	for _, issue := range ValidateHeaders(wb) {
		log.Warn().Str("sheet", issue.Sheet).Int("columns", issue.Columns).Int("want", issue.Want).
			Msg("header row narrower than expected")
	}

	records := MapWorkbook(wb)
	processed, err := s.process(ctx, log, period.Key(), records)
	if err != nil {
		log.Error().Err(err).Int("processed", processed).Msg("upload aborted")
		return nil, fmt.Errorf("upload %s: %w", rec.ID, err)
	}

	if _, err := s.uploads.Transition(ctx, rec.ID, StatusPending, StatusApproved, processed); err != nil {
		return nil, fmt.Errorf("approve upload %s: %w", rec.ID, err)
	}
	log.Info().Int("rows", records.Len()).Int("processed", processed).Msg("upload approved")

	return &Result{Success: true, RecordsProcessed: processed, UploadID: rec.ID}, nil
}

// keep archives the upload when an archive is configured and returns a
// reader over the file. Archive failures are logged, not fatal.
func (s *Service) keep(ctx context.Context, log zerolog.Logger, rec *UploadRecord, req UploadRequest) (io.Reader, error) {
	if s.archive == nil {
		return req.File, nil
	}
	data, err := io.ReadAll(req.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	_, err = s.archive.Upload(ctx, blobstore.BlobMetadata{
		ID:        rec.ID.String(),
		FileName:  req.Filename,
		CreatedBy: req.UploaderID,
		Tags:      map[string]string{"quarter": rec.Quarter, "year": fmt.Sprint(rec.Year)},
	}, bytes.NewReader(data))
	if err != nil {
		log.Warn().Err(err).Msg("archiving upload failed")
	}
	return bytes.NewReader(data), nil
}

var errSkip = errors.New("skip row")

// process runs the four record lists in order: hospital metrics, hospital
// qualifications, retail qualifications, retail profit. Later steps depend
// on entities created by earlier ones.
func (s *Service) process(ctx context.Context, log zerolog.Logger, p program.PeriodKey, recs Records) (int, error) {
	processed := 0
	skip := func(sheet string, row int, reason string, err error) {
		log.Debug().Err(err).Str("sheet", sheet).Int("row", row).Str("reason", reason).Msg("row skipped")
	}

	for _, r := range recs.Hospitals {
		hospital, err := s.store.UpsertHospital(ctx, r.PID, r.HospitalName)
		if err != nil {
			skip(SheetHospital, r.Row, "hospital upsert failed", err)
			continue
		}
		err = s.store.SaveHospitalMetrics(ctx, &program.HospitalMetrics{
			HospitalID:        hospital.ID,
			Quarter:           p.Quarter,
			Year:              p.Year,
			Savings:           r.Savings,
			DrugSpend:         r.DrugSpend,
			SavingsToSpendPct: r.SavingsToSpendPct,
			EligiblePct:       r.EligiblePct,
			MedicaidPct:       r.MedicaidPct,
			MacroSavings:      r.MacroSavings,
		})
		if err != nil {
			return processed, fmt.Errorf("%s row %d: save hospital metrics: %w", SheetHospital, r.Row, err)
		}
		processed++
	}

	for _, r := range recs.HospitalQualifications {
		hospital, err := s.store.HospitalByPID(ctx, r.PID)
		if err != nil {
			skip(SheetHospitalQualifications, r.Row, "hospital pid not found", err)
			continue
		}
		err = s.store.SaveHospitalQualification(ctx, &program.HospitalQualification{
			HospitalID:    hospital.ID,
			Quarter:       p.Quarter,
			Year:          p.Year,
			Qualification: r.Qualification,
		})
		if err != nil {
			return processed, fmt.Errorf("%s row %d: save hospital qualification: %w", SheetHospitalQualifications, r.Row, err)
		}
		processed++
	}

	for _, r := range recs.RetailQualifications {
		hospital, err := s.store.HospitalByName(ctx, r.HospitalName)
		if err != nil {
			skip(SheetRetailQualifications, r.Row, "hospital name not found", err)
			continue
		}
		err = s.tx(ctx, func(ctx context.Context) error {
			pharmacy, err := s.store.UpsertPharmacy(ctx, r.PID, r.HospitalName+" Pharmacy", hospital.ID)
			if err != nil {
				return fmt.Errorf("%w: %v", errSkip, err)
			}
			return s.store.SavePharmacyQualification(ctx, &program.PharmacyQualification{
				PharmacyID:    pharmacy.ID,
				Quarter:       p.Quarter,
				Year:          p.Year,
				Qualification: r.Qualification,
			})
		})
		if errors.Is(err, errSkip) {
			skip(SheetRetailQualifications, r.Row, "pharmacy upsert failed", err)
			continue
		}
		if err != nil {
			return processed, fmt.Errorf("%s row %d: save pharmacy qualification: %w", SheetRetailQualifications, r.Row, err)
		}
		processed++
	}

	for _, r := range recs.RetailProfit {
		pharmacy, err := s.store.PharmacyByPID(ctx, r.PharmacyPID)
		if err != nil {
			skip(SheetRetailProfit, r.Row, "pharmacy pid not found", err)
			continue
		}
		err = s.store.SavePharmacyMetrics(ctx, &program.PharmacyMetrics{
			PharmacyID:          pharmacy.ID,
			Quarter:             p.Quarter,
			Year:                p.Year,
			Scripts:             r.Scripts,
			DispensingFee:       r.DispensingFee,
			CERevenue:           r.CERevenue,
			DrugCost:            r.DrugCost,
			CurrentProfit:       r.CurrentProfit,
			CurrentProfitMedian: r.CurrentProfitMedian,
			BrandProfit:         r.BrandProfit,
			BrandProfitAvg:      r.BrandProfitAvg,
			GenericProfit:       r.GenericProfit,
			GenericProfitAvg:    r.GenericProfitAvg,
			EPAdded340BBenefit:  r.EPAdded340BBenefit,
			EP340BBucketSplit:   r.EP340BBucketSplit,
		})
		if err != nil {
			return processed, fmt.Errorf("%s row %d: save pharmacy metrics: %w", SheetRetailProfit, r.Row, err)
		}
		processed++
	}
	return processed, nil
}

func (s *Service) GetUpload(ctx context.Context, id uuid.UUID) (*UploadRecord, error) {
	return s.uploads.GetByID(ctx, id)
}

func (s *Service) ListUploads(ctx context.Context, limit, offset int) ([]*UploadRecord, int, error) {
	return s.uploads.List(ctx, limit, offset)
}

// UploadFile opens the archived file of an upload.
func (s *Service) UploadFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	if _, err := s.uploads.GetByID(ctx, id); err != nil {
		return nil, nil, err
	}
	if s.archive == nil {
		return nil, nil, fmt.Errorf("%w: no archive configured", ErrNotFound)
	}
	rc, meta, err := s.archive.Download(ctx, id.String())
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, fmt.Errorf("%w: file not archived", ErrNotFound)
	}
	return rc, meta, err
}

// Reject marks an approved upload as rejected. Rows it wrote are kept.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*UploadRecord, error) {
	u, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(u.Status, StatusRejected) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, u.Status, StatusRejected)
	}
	return s.uploads.Transition(ctx, id, u.Status, StatusRejected, u.RecordsProcessed)
}
