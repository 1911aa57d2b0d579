package relational

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/marketledger/internal/ledger/domain"
	platformdomain "github.com/smallbiznis/marketledger/internal/platform/domain"
	reconciliationdomain "github.com/smallbiznis/marketledger/internal/reconciliation/domain"
	sellerdomain "github.com/smallbiznis/marketledger/internal/seller/domain"
	"gorm.io/datatypes"
)

type financialTransactionModel struct {
	ID                int64  `gorm:"primaryKey;autoIncrement:false"`
	TerritoryID       int64  `gorm:"not null;index:idx_financial_transactions_settlement,priority:1"`
	Type              string `gorm:"type:varchar(32);not null;index:idx_financial_transactions_settlement,priority:2"`
	Status            string `gorm:"type:varchar(32);not null"`
	Amount            int64  `gorm:"not null"`
	Currency          string `gorm:"type:varchar(3);not null"`
	Description       string `gorm:"type:text"`
	RelatedEntityID   int64  `gorm:"not null;default:0"`
	RelatedEntityType string `gorm:"type:varchar(32)"`
	Metadata          datatypes.JSONMap
	CreatedAt         time.Time `gorm:"not null;autoCreateTime:false;index:idx_financial_transactions_settlement,priority:3"`
	UpdatedAt         time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (financialTransactionModel) TableName() string { return "financial_transactions" }

func newFinancialTransactionModel(t ledgerdomain.FinancialTransaction) financialTransactionModel {
	var metadata datatypes.JSONMap
	if len(t.Metadata) > 0 {
		metadata = make(datatypes.JSONMap, len(t.Metadata))
		for k, v := range t.Metadata {
			metadata[k] = v
		}
	}
	return financialTransactionModel{
		ID:                int64(t.ID),
		TerritoryID:       int64(t.TerritoryID),
		Type:              string(t.Type),
		Status:            string(t.Status),
		Amount:            t.Amount,
		Currency:          t.Currency,
		Description:       t.Description,
		RelatedEntityID:   int64(t.RelatedEntityID),
		RelatedEntityType: t.RelatedEntityType,
		Metadata:          metadata,
		CreatedAt:         t.CreatedAt.UTC(),
		UpdatedAt:         t.UpdatedAt.UTC(),
	}
}

func (m financialTransactionModel) toDomain(related []int64) ledgerdomain.FinancialTransaction {
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			if s, ok := v.(string); ok {
				metadata[k] = s
			}
		}
	}
	var relatedIDs []snowflake.ID
	for _, id := range related {
		relatedIDs = append(relatedIDs, snowflake.ID(id))
	}
	return ledgerdomain.FinancialTransaction{
		ID:                    snowflake.ID(m.ID),
		TerritoryID:           snowflake.ID(m.TerritoryID),
		Type:                  ledgerdomain.TransactionType(m.Type),
		Status:                ledgerdomain.TransactionStatus(m.Status),
		Amount:                m.Amount,
		Currency:              m.Currency,
		Description:           m.Description,
		RelatedEntityID:       snowflake.ID(m.RelatedEntityID),
		RelatedEntityType:     m.RelatedEntityType,
		RelatedTransactionIDs: relatedIDs,
		Metadata:              metadata,
		CreatedAt:             m.CreatedAt.UTC(),
		UpdatedAt:             m.UpdatedAt.UTC(),
	}
}

type transactionLinkModel struct {
	TransactionID int64 `gorm:"primaryKey;autoIncrement:false"`
	RelatedID     int64 `gorm:"primaryKey;autoIncrement:false"`
}

func (transactionLinkModel) TableName() string { return "financial_transaction_links" }

type statusHistoryModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement:false"`
	TransactionID  int64     `gorm:"not null;index"`
	PreviousStatus string    `gorm:"type:varchar(32)"`
	NewStatus      string    `gorm:"type:varchar(32);not null"`
	ActorID        string    `gorm:"type:varchar(128)"`
	Reason         string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime:false"`
}

func (statusHistoryModel) TableName() string { return "transaction_status_history" }

func (m statusHistoryModel) toDomain() ledgerdomain.TransactionStatusHistory {
	return ledgerdomain.TransactionStatusHistory{
		ID:             snowflake.ID(m.ID),
		TransactionID:  snowflake.ID(m.TransactionID),
		PreviousStatus: ledgerdomain.TransactionStatus(m.PreviousStatus),
		NewStatus:      ledgerdomain.TransactionStatus(m.NewStatus),
		ActorID:        m.ActorID,
		Reason:         m.Reason,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

type sellerTransactionModel struct {
	ID                     int64  `gorm:"primaryKey;autoIncrement:false"`
	CheckoutID             int64  `gorm:"not null;uniqueIndex:ux_seller_transactions_checkout"`
	TerritoryID            int64  `gorm:"not null;index:idx_seller_transactions_promotion,priority:1;index:idx_seller_transactions_seller,priority:1"`
	StoreID                int64  `gorm:"not null"`
	SellerID               int64  `gorm:"not null;index:idx_seller_transactions_seller,priority:2"`
	GrossAmount            int64  `gorm:"not null"`
	FeeAmount              int64  `gorm:"not null"`
	NetAmount              int64  `gorm:"not null"`
	Currency               string `gorm:"type:varchar(3);not null"`
	FeeRate                string `gorm:"type:varchar(32);not null"`
	Status                 string `gorm:"type:varchar(32);not null;index:idx_seller_transactions_promotion,priority:2"`
	PayoutBatchID          int64  `gorm:"not null;default:0"`
	ReadyForPayoutAt       *time.Time
	PaidAt                 *time.Time
	ReversedAt             *time.Time
	ReversalReason         string    `gorm:"type:text"`
	FinancialTransactionID int64     `gorm:"not null;default:0"`
	PayoutTransactionID    int64     `gorm:"not null;default:0"`
	ReversalTransactionID  int64     `gorm:"not null;default:0"`
	CreatedAt              time.Time `gorm:"not null;autoCreateTime:false;index:idx_seller_transactions_promotion,priority:3"`
	UpdatedAt              time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (sellerTransactionModel) TableName() string { return "seller_transactions" }

func newSellerTransactionModel(t sellerdomain.SellerTransaction) sellerTransactionModel {
	return sellerTransactionModel{
		ID:                     int64(t.ID),
		CheckoutID:             int64(t.CheckoutID),
		TerritoryID:            int64(t.TerritoryID),
		StoreID:                int64(t.StoreID),
		SellerID:               int64(t.SellerID),
		GrossAmount:            t.GrossAmount,
		FeeAmount:              t.FeeAmount,
		NetAmount:              t.NetAmount,
		Currency:               t.Currency,
		FeeRate:                t.FeeRate,
		Status:                 string(t.Status),
		PayoutBatchID:          int64(t.PayoutBatchID),
		ReadyForPayoutAt:       utcPtr(t.ReadyForPayoutAt),
		PaidAt:                 utcPtr(t.PaidAt),
		ReversedAt:             utcPtr(t.ReversedAt),
		ReversalReason:         t.ReversalReason,
		FinancialTransactionID: int64(t.FinancialTransactionID),
		PayoutTransactionID:    int64(t.PayoutTransactionID),
		ReversalTransactionID:  int64(t.ReversalTransactionID),
		CreatedAt:              t.CreatedAt.UTC(),
		UpdatedAt:              t.UpdatedAt.UTC(),
	}
}

func (m sellerTransactionModel) toDomain() sellerdomain.SellerTransaction {
	return sellerdomain.SellerTransaction{
		ID:                     snowflake.ID(m.ID),
		CheckoutID:             snowflake.ID(m.CheckoutID),
		TerritoryID:            snowflake.ID(m.TerritoryID),
		StoreID:                snowflake.ID(m.StoreID),
		SellerID:               snowflake.ID(m.SellerID),
		GrossAmount:            m.GrossAmount,
		FeeAmount:              m.FeeAmount,
		NetAmount:              m.NetAmount,
		Currency:               m.Currency,
		FeeRate:                m.FeeRate,
		Status:                 sellerdomain.SellerTransactionStatus(m.Status),
		PayoutBatchID:          snowflake.ID(m.PayoutBatchID),
		ReadyForPayoutAt:       utcPtr(m.ReadyForPayoutAt),
		PaidAt:                 utcPtr(m.PaidAt),
		ReversedAt:             utcPtr(m.ReversedAt),
		ReversalReason:         m.ReversalReason,
		FinancialTransactionID: snowflake.ID(m.FinancialTransactionID),
		PayoutTransactionID:    snowflake.ID(m.PayoutTransactionID),
		ReversalTransactionID:  snowflake.ID(m.ReversalTransactionID),
		CreatedAt:              m.CreatedAt.UTC(),
		UpdatedAt:              m.UpdatedAt.UTC(),
	}
}

type sellerBalanceModel struct {
	TerritoryID          int64     `gorm:"primaryKey;autoIncrement:false"`
	SellerID             int64     `gorm:"primaryKey;autoIncrement:false"`
	PendingAmount        int64     `gorm:"not null;default:0"`
	ReadyForPayoutAmount int64     `gorm:"not null;default:0"`
	PaidAmount           int64     `gorm:"not null;default:0"`
	Currency             string    `gorm:"type:varchar(3);not null"`
	Version              int64     `gorm:"not null;default:1"` // optimistic lock
	UpdatedAt            time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (sellerBalanceModel) TableName() string { return "seller_balances" }

func newSellerBalanceModel(b sellerdomain.SellerBalance) sellerBalanceModel {
	return sellerBalanceModel{
		TerritoryID:          int64(b.TerritoryID),
		SellerID:             int64(b.SellerID),
		PendingAmount:        b.PendingAmount,
		ReadyForPayoutAmount: b.ReadyForPayoutAmount,
		PaidAmount:           b.PaidAmount,
		Currency:             b.Currency,
		Version:              b.Version,
		UpdatedAt:            b.UpdatedAt.UTC(),
	}
}

func (m sellerBalanceModel) toDomain() sellerdomain.SellerBalance {
	return sellerdomain.SellerBalance{
		TerritoryID:          snowflake.ID(m.TerritoryID),
		SellerID:             snowflake.ID(m.SellerID),
		PendingAmount:        m.PendingAmount,
		ReadyForPayoutAmount: m.ReadyForPayoutAmount,
		PaidAmount:           m.PaidAmount,
		Currency:             m.Currency,
		Version:              m.Version,
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

type platformBalanceModel struct {
	TerritoryID   int64     `gorm:"primaryKey;autoIncrement:false"`
	TotalRevenue  int64     `gorm:"not null;default:0"`
	TotalExpenses int64     `gorm:"not null;default:0"`
	NetBalance    int64     `gorm:"not null;default:0"`
	Currency      string    `gorm:"type:varchar(3);not null"`
	Version       int64     `gorm:"not null;default:1"` // optimistic lock
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (platformBalanceModel) TableName() string { return "platform_financial_balances" }

func newPlatformBalanceModel(b platformdomain.PlatformFinancialBalance) platformBalanceModel {
	return platformBalanceModel{
		TerritoryID:   int64(b.TerritoryID),
		TotalRevenue:  b.TotalRevenue,
		TotalExpenses: b.TotalExpenses,
		NetBalance:    b.NetBalance,
		Currency:      b.Currency,
		Version:       b.Version,
		UpdatedAt:     b.UpdatedAt.UTC(),
	}
}

func (m platformBalanceModel) toDomain() platformdomain.PlatformFinancialBalance {
	return platformdomain.PlatformFinancialBalance{
		TerritoryID:   snowflake.ID(m.TerritoryID),
		TotalRevenue:  m.TotalRevenue,
		TotalExpenses: m.TotalExpenses,
		NetBalance:    m.NetBalance,
		Currency:      m.Currency,
		Version:       m.Version,
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

type revenueModel struct {
	ID                     int64     `gorm:"primaryKey;autoIncrement:false"`
	TerritoryID            int64     `gorm:"not null;index"`
	CheckoutID             int64     `gorm:"not null;uniqueIndex:ux_platform_revenue_checkout"`
	SellerTransactionID    int64     `gorm:"not null;default:0"`
	Amount                 int64     `gorm:"not null"`
	Currency               string    `gorm:"type:varchar(3);not null"`
	FinancialTransactionID int64     `gorm:"not null;default:0"`
	CreatedAt              time.Time `gorm:"not null;autoCreateTime:false"`
}

func (revenueModel) TableName() string { return "platform_revenue_transactions" }

func (m revenueModel) toDomain() platformdomain.PlatformRevenueTransaction {
	return platformdomain.PlatformRevenueTransaction{
		ID:                     snowflake.ID(m.ID),
		TerritoryID:            snowflake.ID(m.TerritoryID),
		CheckoutID:             snowflake.ID(m.CheckoutID),
		SellerTransactionID:    snowflake.ID(m.SellerTransactionID),
		Amount:                 m.Amount,
		Currency:               m.Currency,
		FinancialTransactionID: snowflake.ID(m.FinancialTransactionID),
		CreatedAt:              m.CreatedAt.UTC(),
	}
}

type expenseModel struct {
	ID                     int64     `gorm:"primaryKey;autoIncrement:false"`
	TerritoryID            int64     `gorm:"not null;index"`
	SellerTransactionID    *int64    `gorm:"uniqueIndex:ux_platform_expense_seller_transaction"`
	Amount                 int64     `gorm:"not null"`
	Currency               string    `gorm:"type:varchar(3);not null"`
	PayoutBatchID          int64     `gorm:"not null;default:0"`
	FinancialTransactionID int64     `gorm:"not null;default:0"`
	CreatedAt              time.Time `gorm:"not null;autoCreateTime:false"`
}

func (expenseModel) TableName() string { return "platform_expense_transactions" }

func (m expenseModel) toDomain() platformdomain.PlatformExpenseTransaction {
	var sellerTxnID snowflake.ID
	if m.SellerTransactionID != nil {
		sellerTxnID = snowflake.ID(*m.SellerTransactionID)
	}
	return platformdomain.PlatformExpenseTransaction{
		ID:                     snowflake.ID(m.ID),
		TerritoryID:            snowflake.ID(m.TerritoryID),
		SellerTransactionID:    sellerTxnID,
		Amount:                 m.Amount,
		Currency:               m.Currency,
		PayoutBatchID:          snowflake.ID(m.PayoutBatchID),
		FinancialTransactionID: snowflake.ID(m.FinancialTransactionID),
		CreatedAt:              m.CreatedAt.UTC(),
	}
}

type reconciliationModel struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement:false"`
	TerritoryID        int64     `gorm:"not null;uniqueIndex:ux_reconciliation_territory_date,priority:1"`
	ReconciliationDate string    `gorm:"type:varchar(10);not null;uniqueIndex:ux_reconciliation_territory_date,priority:2"`
	ExpectedAmount     int64     `gorm:"not null"`
	ActualAmount       int64     `gorm:"not null"`
	Difference         int64     `gorm:"not null"`
	Currency           string    `gorm:"type:varchar(3);not null"`
	Status             string    `gorm:"type:varchar(32);not null"`
	Notes              string    `gorm:"type:text"`
	ReconcilerID       string    `gorm:"type:varchar(128)"`
	Version            int64     `gorm:"not null;default:1"` // optimistic lock
	CreatedAt          time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt          time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (reconciliationModel) TableName() string { return "reconciliation_records" }

func newReconciliationModel(r reconciliationdomain.ReconciliationRecord) reconciliationModel {
	return reconciliationModel{
		ID:                 int64(r.ID),
		TerritoryID:        int64(r.TerritoryID),
		ReconciliationDate: r.ReconciliationDate.UTC().Format(reconciliationdomain.DateLayout),
		ExpectedAmount:     r.ExpectedAmount,
		ActualAmount:       r.ActualAmount,
		Difference:         r.Difference,
		Currency:           r.Currency,
		Status:             string(r.Status),
		Notes:              r.Notes,
		ReconcilerID:       r.ReconcilerID,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func (m reconciliationModel) toDomain() (reconciliationdomain.ReconciliationRecord, error) {
	date, err := time.ParseInLocation(reconciliationdomain.DateLayout, m.ReconciliationDate, time.UTC)
	if err != nil {
		return reconciliationdomain.ReconciliationRecord{}, err
	}
	return reconciliationdomain.ReconciliationRecord{
		ID:                 snowflake.ID(m.ID),
		TerritoryID:        snowflake.ID(m.TerritoryID),
		ReconciliationDate: date,
		ExpectedAmount:     m.ExpectedAmount,
		ActualAmount:       m.ActualAmount,
		Difference:         m.Difference,
		Currency:           m.Currency,
		Status:             reconciliationdomain.Status(m.Status),
		Notes:              m.Notes,
		ReconcilerID:       m.ReconcilerID,
		Version:            m.Version,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}, nil
}

// Models lists every table of the relational layout.
func Models() []any {
	return []any{
		&financialTransactionModel{},
		&transactionLinkModel{},
		&statusHistoryModel{},
		&sellerTransactionModel{},
		&sellerBalanceModel{},
		&platformBalanceModel{},
		&revenueModel{},
		&expenseModel{},
		&reconciliationModel{},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
