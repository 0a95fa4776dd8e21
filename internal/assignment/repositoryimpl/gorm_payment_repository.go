package repositoryimpl

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kazz187/devguild/internal/assignment"
	"github.com/kazz187/devguild/internal/database"
)

type paymentRow struct {
	ID            string          `gorm:"primaryKey;size:26"`
	AssignmentID  string          `gorm:"size:26;not null;uniqueIndex:idx_payment_attempt,priority:1"`
	Attempt       int             `gorm:"not null;uniqueIndex:idx_payment_attempt,priority:2"`
	CandidateID   string          `gorm:"size:64;index;not null"`
	Status        string          `gorm:"size:16;index;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	TransactionID string          `gorm:"size:128"`
	FailureReason string          `gorm:"size:512"`
	ProcessedDate *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (paymentRow) TableName() string { return "payments" }

func toPaymentRow(p *assignment.Payment) *paymentRow {
	return &paymentRow{
		ID:            p.ID,
		AssignmentID:  p.AssignmentID,
		Attempt:       p.Attempt,
		CandidateID:   p.CandidateID,
		Status:        string(p.Status),
		Amount:        p.Amount,
		Currency:      p.Currency,
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		ProcessedDate: p.ProcessedDate,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (r *paymentRow) toEntity() *assignment.Payment {
	return &assignment.Payment{
		ID:            r.ID,
		AssignmentID:  r.AssignmentID,
		Attempt:       r.Attempt,
		CandidateID:   r.CandidateID,
		Status:        assignment.PaymentStatus(r.Status),
		Amount:        r.Amount,
		Currency:      r.Currency,
		TransactionID: r.TransactionID,
		FailureReason: r.FailureReason,
		ProcessedDate: r.ProcessedDate,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&paymentRow{})
}

// CreateAttempt locks the parent assignment row so concurrent attempts for
// the same assignment are serialised.
func (r *GormPaymentRepository) CreateAttempt(ctx context.Context, p *assignment.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent assignmentRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&parent, "id = ?", p.AssignmentID).Error; err != nil {
			return database.WrapReadError("assignment", err)
		}

		var rows []paymentRow
		if err := tx.Where("assignment_id = ?", p.AssignmentID).Order("attempt").Find(&rows).Error; err != nil {
			return database.WrapReadError("payments", err)
		}
		for _, row := range rows {
			if s := assignment.PaymentStatus(row.Status); s.IsOpen() {
				return assignment.ErrPaymentInProgress(p.AssignmentID, s)
			}
		}
		p.Attempt = len(rows) + 1
		if err := tx.Create(toPaymentRow(p)).Error; err != nil {
			return database.WrapWriteError("payment", err)
		}
		return nil
	})
}

func (r *GormPaymentRepository) Get(ctx context.Context, id string) (*assignment.Payment, error) {
	var row paymentRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, database.WrapReadError("payment", err)
	}
	return row.toEntity(), nil
}

func (r *GormPaymentRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*assignment.Payment, error) {
	return r.find(ctx, "assignment_id = ?", assignmentID)
}

func (r *GormPaymentRepository) ListCompletedByCandidate(ctx context.Context, candidateID string) ([]*assignment.Payment, error) {
	return r.find(ctx, "candidate_id = ? AND status = ?", candidateID, string(assignment.PaymentCompleted))
}

func (r *GormPaymentRepository) find(ctx context.Context, query string, args ...any) ([]*assignment.Payment, error) {
	var rows []paymentRow
	if err := r.db.WithContext(ctx).Where(query, args...).Order("assignment_id, attempt").Find(&rows).Error; err != nil {
		return nil, database.WrapReadError("payments", err)
	}
	out := make([]*assignment.Payment, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

func (r *GormPaymentRepository) Update(ctx context.Context, p *assignment.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored paymentRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&stored, "id = ?", p.ID).Error; err != nil {
			return database.WrapReadError("payment", err)
		}
		if err := assignment.CheckPaymentUpdate(stored.toEntity(), p); err != nil {
			return err
		}
		if err := tx.Model(&paymentRow{ID: p.ID}).Select("*").Omit("id", "created_at").Updates(toPaymentRow(p)).Error; err != nil {
			return database.WrapWriteError("payment", err)
		}
		return nil
	})
}
