package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ledger-service/internal/models"
	"ledger-service/internal/repositories"
)

// ErrMapping marks a source record that cannot be converted to a canonical transaction
var ErrMapping = errors.New("source record cannot be mapped")

type NormalizeResult struct {
	Inserted bool `json:"inserted"`
	// Linked is set when empty links on an existing canonical row were back-filled
	Linked bool `json:"linked"`
}

// NormalizerService converts source records into canonical transactions.
// Dedup is by (source system, source id); the unique key on the canonical
// table closes the race between concurrent writers.
type NormalizerService struct {
	transactionRepo repositories.TransactionRepository
	propertyRepo    repositories.PropertyRepository
	log             zerolog.Logger
}

func NewNormalizerService(
	transactionRepo repositories.TransactionRepository,
	propertyRepo repositories.PropertyRepository,
	log zerolog.Logger,
) *NormalizerService {
	return &NormalizerService{
		transactionRepo: transactionRepo,
		propertyRepo:    propertyRepo,
		log:             log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize inserts rec unless a canonical row with the same source identifier exists
func (s *NormalizerService) Normalize(ctx context.Context, rec *models.SourceRecord) (NormalizeResult, error) {
	return s.normalize(ctx, rec, false)
}

// NormalizeAndBackfill is Normalize, but on a dedup hit it fills the existing row's empty links
func (s *NormalizerService) NormalizeAndBackfill(ctx context.Context, rec *models.SourceRecord) (NormalizeResult, error) {
	return s.normalize(ctx, rec, true)
}

func (s *NormalizerService) normalize(ctx context.Context, rec *models.SourceRecord, backfill bool) (NormalizeResult, error) {
	t, err := ToCanonical(rec)
	if err != nil {
		return NormalizeResult{}, err
	}

	if t.SourceTransactionID != "" {
		exists, err := s.transactionRepo.ExistsBySource(ctx, t.SourceSystem, t.SourceTransactionID)
		if err != nil {
			return NormalizeResult{}, fmt.Errorf("failed to check existing transaction: %w", err)
		}
		if exists {
			return s.duplicate(ctx, rec, t, backfill)
		}
	}

	t.Links = s.resolveLinks(ctx, rec)

	err = s.transactionRepo.InsertTransaction(ctx, t)
	if errors.Is(err, repositories.ErrDuplicateSource) {
		return s.duplicate(ctx, rec, t, backfill)
	}
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("failed to insert canonical transaction: %w", err)
	}
	return NormalizeResult{Inserted: true}, nil
}

func (s *NormalizerService) duplicate(ctx context.Context, rec *models.SourceRecord, t *models.Transaction, backfill bool) (NormalizeResult, error) {
	if !backfill {
		return NormalizeResult{}, nil
	}
	links := s.resolveLinks(ctx, rec)
	linked, err := s.transactionRepo.BackfillLinksBySource(ctx, t.SourceSystem, t.SourceTransactionID, links)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("failed to back-fill links: %w", err)
	}
	return NormalizeResult{Linked: linked}, nil
}

// ToCanonical maps a source record onto the canonical shape. Fee values are copied
// verbatim; links are left for resolveLinks.
func ToCanonical(rec *models.SourceRecord) (*models.Transaction, error) {
	if !rec.SourceSystem.Valid() {
		return nil, fmt.Errorf("%w: unknown source system %q", ErrMapping, rec.SourceSystem)
	}
	if !rec.TransactionDate.Valid {
		return nil, fmt.Errorf("%w: transaction_date is required", ErrMapping)
	}
	if !rec.Amount.Valid {
		return nil, fmt.Errorf("%w: amount is required", ErrMapping)
	}

	return &models.Transaction{
		SourceSystem:        rec.SourceSystem,
		SourceTransactionID: rec.SourceID,
		AccountSource:       rec.AccountSource,
		DataSource:          rec.DataSource,
		TransactionDate:     models.TruncateDate(rec.TransactionDate.Time),
		Amount:              rec.Amount.Decimal,
		Description:         rec.Description,
		TransactionType:     rec.TransactionType,
		Category:            rec.Category,
		Subcategory:         rec.Subcategory,
		CounterpartyRole:    rec.CounterpartyRole,
		PropertyReference:   rec.PropertyReference,
		Links:               rec.Links,
		FeeBreakdown:        rec.FeeBreakdown,
		Reconciled:          rec.Reconciled,
		ReconciliationDate:  rec.ReconciliationDate,
	}, nil
}

// resolveLinks fills the property from the source's property reference and the owner
// from the property. A miss is never an error.
func (s *NormalizerService) resolveLinks(ctx context.Context, rec *models.SourceRecord) models.Links {
	links := rec.Links
	var property *models.Property

	if !links.PropertyID.Valid && rec.PropertyReference != "" {
		p, err := s.propertyRepo.FindByExternalID(ctx, rec.PropertyReference)
		switch {
		case err == nil:
			property = p
			links.PropertyID = sql.NullInt64{Int64: p.ID, Valid: true}
		case errors.Is(err, repositories.ErrNotFound):
			s.log.Debug().Str("property_reference", rec.PropertyReference).Msg("Property not found, leaving link empty")
		default:
			s.log.Warn().Err(err).Str("property_reference", rec.PropertyReference).Msg("Property lookup failed")
		}
	}

	if !links.OwnerID.Valid && links.PropertyID.Valid {
		if property == nil {
			p, err := s.propertyRepo.FindByID(ctx, links.PropertyID.Int64)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				s.log.Warn().Err(err).Int64("property_id", links.PropertyID.Int64).Msg("Property lookup failed")
			}
			property = p
		}
		if property != nil && property.OwnerID.Valid {
			links.OwnerID = property.OwnerID
		}
	}

	return links
}

// BackfillLinks fills the empty links of canonical transaction id from links.
// Links already set and every money field are left as they are.
func (s *NormalizerService) BackfillLinks(ctx context.Context, id int64, links models.Links) (*models.Transaction, bool, error) {
	if _, err := s.transactionRepo.GetTransactionByID(ctx, id); err != nil {
		return nil, false, err
	}
	changed, err := s.transactionRepo.BackfillLinksByID(ctx, id, links)
	if err != nil {
		return nil, false, fmt.Errorf("failed to back-fill links: %w", err)
	}
	t, err := s.transactionRepo.GetTransactionByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return t, changed, nil
}
