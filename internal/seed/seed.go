package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/config"
	ledgerdomain "github.com/smallbiznis/ispbill/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureLedgerAccounts creates the accounts named by the billing policy.
// Existing codes are left untouched.
func EnsureLedgerAccounts(ctx context.Context, db *gorm.DB, node *snowflake.Node, policy config.Policy) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	type account struct {
		Code string
		Type ledgerdomain.AccountType
		Name string
	}

	accounts := []account{
		{policy.Accounts.Receivable, ledgerdomain.AccountTypeReceivable, "Accounts Receivable"},
		{policy.Accounts.Payable, ledgerdomain.AccountTypePayable, "Accounts Payable"},
		{policy.Accounts.Income, ledgerdomain.AccountTypeIncome, "Internet Service Revenue"},
		{policy.Accounts.Cash, ledgerdomain.AccountTypeLiquidity, "Cash / Bank"},
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range accounts {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).Create(&ledgerdomain.Account{
				ID:        node.Generate(),
				Code:      a.Code,
				Type:      a.Type,
				Name:      a.Name,
				CreatedAt: now,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
