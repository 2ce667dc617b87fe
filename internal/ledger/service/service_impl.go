package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"github.com/smallbiznis/ispbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) AccountByCode(ctx context.Context, tx *gorm.DB, code string) (*domain.Account, error) {
	var account domain.Account
	err := tx.WithContext(ctx).Where("code = ?", strings.TrimSpace(code)).Limit(1).Find(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (s *Service) PostEntry(ctx context.Context, tx *gorm.DB, req domain.PostEntryRequest) (*domain.Entry, []domain.EntryLine, error) {
	if strings.TrimSpace(string(req.SourceType)) == "" {
		return nil, nil, domain.ErrInvalidSourceType
	}
	if req.SourceID == 0 {
		return nil, nil, domain.ErrInvalidSourceID
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, nil, domain.ErrInvalidCurrency
	}
	if len(req.Lines) < 2 {
		return nil, nil, domain.ErrInvalidEntryLines
	}
	for _, line := range req.Lines {
		if line.AccountID == 0 {
			return nil, nil, domain.ErrAccountNotFound
		}
		if !line.Amount.IsPositive() {
			return nil, nil, domain.ErrInvalidLineAmount
		}
	}
	if err := domain.ValidateBalanced(req.Lines); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	entry := &domain.Entry{
		ID:         s.genID.Generate(),
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		PartnerID:  req.PartnerID,
		Currency:   currency,
		State:      domain.EntryStatePosted,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, nil, domain.ErrDuplicateEntry
		}
		return nil, nil, err
	}

	lines := make([]domain.EntryLine, 0, len(req.Lines))
	for _, input := range req.Lines {
		partnerID := input.PartnerID
		if partnerID == 0 {
			partnerID = req.PartnerID
		}
		line := domain.EntryLine{
			ID:            s.genID.Generate(),
			LedgerEntryID: entry.ID,
			AccountID:     input.AccountID,
			PartnerID:     partnerID,
			Direction:     input.Direction,
			Amount:        input.Amount,
			CreatedAt:     now,
		}
		line.AmountResidual = line.Balance()
		lines = append(lines, line)
	}
	if err := tx.WithContext(ctx).Create(&lines).Error; err != nil {
		return nil, nil, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(req.SourceType))
	s.log.Debug("ledger.entry.posted",
		zap.String("entry_id", entry.ID.String()),
		zap.String("source_type", string(entry.SourceType)),
		zap.String("source_id", entry.SourceID.String()),
		zap.Int("lines", len(lines)),
	)
	return entry, lines, nil
}

func (s *Service) EntryLines(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) ([]domain.EntryLine, error) {
	var lines []domain.EntryLine
	err := tx.WithContext(ctx).
		Where("ledger_entry_id = ?", entryID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (s *Service) PayTermLines(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) ([]domain.EntryLine, error) {
	var lines []domain.EntryLine
	err := tx.WithContext(ctx).
		Table("ledger_entry_lines AS l").
		Select("l.*").
		Joins("JOIN ledger_accounts AS a ON a.id = l.account_id").
		Where("l.ledger_entry_id = ?", entryID).
		Where("a.type IN ?", []domain.AccountType{domain.AccountTypeReceivable, domain.AccountTypePayable}).
		Order("l.id ASC").
		Scan(&lines).Error
	return lines, err
}

func (s *Service) OpenLines(ctx context.Context, tx *gorm.DB, filter domain.CandidateFilter) ([]domain.EntryLine, error) {
	if len(filter.AccountIDs) == 0 {
		return nil, nil
	}
	stmt := tx.WithContext(ctx).
		Table("ledger_entry_lines AS l").
		Select("l.*").
		Joins("JOIN ledger_entries AS e ON e.id = l.ledger_entry_id").
		Where("l.account_id IN ?", filter.AccountIDs).
		Where("e.state = ?", domain.EntryStatePosted).
		Where("l.partner_id = ?", filter.PartnerID).
		Where("l.reconciled = ?", false).
		Where("l.amount_residual <> 0")
	switch {
	case filter.Sign < 0:
		stmt = stmt.Where("l.direction = ?", domain.DirectionCredit)
	case filter.Sign > 0:
		stmt = stmt.Where("l.direction = ?", domain.DirectionDebit)
	}
	if filter.ExcludeEntry != 0 {
		stmt = stmt.Where("l.ledger_entry_id <> ?", filter.ExcludeEntry)
	}
	if filter.Currency != "" {
		stmt = stmt.Where("e.currency = ?", filter.Currency)
	}

	var lines []domain.EntryLine
	err := stmt.Order("l.created_at ASC, l.id ASC").Scan(&lines).Error
	return lines, err
}

func (s *Service) Reconcile(ctx context.Context, tx *gorm.DB, lineIDs []snowflake.ID) (int, error) {
	if len(lineIDs) < 2 {
		return 0, nil
	}
	var lines []domain.EntryLine
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", lineIDs).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return 0, err
	}

	var debits, credits []*domain.EntryLine
	for i := range lines {
		line := &lines[i]
		if line.AccountID != lines[0].AccountID {
			return 0, domain.ErrMixedAccounts
		}
		if line.Reconciled {
			continue
		}
		switch {
		case line.AmountResidual.IsPositive():
			debits = append(debits, line)
		case line.AmountResidual.IsNegative():
			credits = append(credits, line)
		}
	}
	if len(debits) == 0 || len(credits) == 0 {
		return 0, nil
	}

	reconcileID := s.genID.Generate()
	now := time.Now().UTC()
	touched := map[snowflake.ID]*domain.EntryLine{}
	matches := make([]domain.Match, 0)

	d, c := 0, 0
	for d < len(debits) && c < len(credits) {
		debit, credit := debits[d], credits[c]
		amount := decimal.Min(debit.AmountResidual, credit.AmountResidual.Neg())

		debit.AmountResidual = debit.AmountResidual.Sub(amount)
		credit.AmountResidual = credit.AmountResidual.Add(amount)
		touched[debit.ID] = debit
		touched[credit.ID] = credit
		matches = append(matches, domain.Match{
			ID:           s.genID.Generate(),
			ReconcileID:  reconcileID,
			DebitLineID:  debit.ID,
			CreditLineID: credit.ID,
			Amount:       amount,
			CreatedAt:    now,
		})

		if debit.AmountResidual.IsZero() {
			d++
		}
		if credit.AmountResidual.IsZero() {
			c++
		}
	}

	for _, line := range touched {
		line.Reconciled = line.AmountResidual.IsZero()
		line.ReconcileID = &reconcileID
		err := tx.WithContext(ctx).
			Model(&domain.EntryLine{}).
			Where("id = ?", line.ID).
			Updates(map[string]any{
				"amount_residual": line.AmountResidual,
				"reconciled":      line.Reconciled,
				"reconcile_id":    reconcileID,
			}).Error
		if err != nil {
			return 0, err
		}
	}
	if err := tx.WithContext(ctx).Create(&matches).Error; err != nil {
		return 0, err
	}
	return len(matches), nil
}
