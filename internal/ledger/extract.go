package ledger

import (
	"encoding/json"
	"strings"

	"github.com/rafflebox/rafflebox-backend/pkg/db/models"
)

// codeExtractor pulls a referral code out of one of the historical locations
// a transaction may carry it in. Extractors are tried in a fixed order.
type codeExtractor func(models.CashInTransaction) string

var attributionExtractors = []codeExtractor{
	fromReferralColumn,
	fromLegacyColumn,
	fromMetadataKey("referral_code"),
	fromMetadataKey("referal_code"),
}

// AttributedCode returns the referral code attached to a transaction, or an
// empty string when none of the known fields carry one.
func AttributedCode(txn models.CashInTransaction) string {
	for _, extract := range attributionExtractors {
		if code := extract(txn); code != "" {
			return code
		}
	}
	return ""
}

func fromReferralColumn(txn models.CashInTransaction) string {
	if txn.ReferralCode == nil {
		return ""
	}
	return strings.TrimSpace(*txn.ReferralCode)
}

func fromLegacyColumn(txn models.CashInTransaction) string {
	if txn.ReferalCode == nil {
		return ""
	}
	return strings.TrimSpace(*txn.ReferalCode)
}

func fromMetadataKey(key string) codeExtractor {
	return func(txn models.CashInTransaction) string {
		if len(txn.Metadata) == 0 {
			return ""
		}
		var meta map[string]any
		if err := json.Unmarshal(txn.Metadata, &meta); err != nil {
			return ""
		}
		raw, ok := meta[key]
		if !ok {
			return ""
		}
		code, ok := raw.(string)
		if !ok {
			return ""
		}
		return strings.TrimSpace(code)
	}
}
