package core

import (
	"fmt"
	"time"
)

// MarketSnapshot holds current market data for one company.
type MarketSnapshot struct {
	Symbol            string       `json:"symbol"`
	CompanyName       string       `json:"company_name"`
	Currency          string       `json:"currency,omitempty"` // vendor-reported listing currency
	Price             *VendorValue `json:"price"`
	SharesOutstanding *VendorValue `json:"shares_outstanding"`
	MarketCap         Source       `json:"market_cap"` // *VendorValue when vendor-reported, else *DerivedValue
}

// MarketCapValue returns the market cap, absent when unknown.
func (s *MarketSnapshot) MarketCapValue() Number {
	if s == nil || s.MarketCap == nil {
		return None()
	}
	return s.MarketCap.Amount()
}

// CashTreatment selects how cash enters the EV bridge.
type CashTreatment string

const (
	CashSubtract CashTreatment = "subtract"
	CashIgnore   CashTreatment = "ignore"
)

// DebtMode selects which debt lines enter the EV bridge.
type DebtMode string

const (
	DebtTotalOnly      DebtMode = "total_only"
	DebtSplit          DebtMode = "split"
	DebtTotalPlusShort DebtMode = "total_plus_short"
)

// EVPolicy configures enterprise value bridge construction.
type EVPolicy struct {
	CashTreatment                   CashTreatment `json:"cash_treatment" mapstructure:"cash_treatment"`
	IncludeLeases                   bool          `json:"include_leases" mapstructure:"include_leases"`
	SubtractEquityMethodInvestments bool          `json:"subtract_equity_method_investments" mapstructure:"subtract_equity_method_investments"`
	DebtMode                        DebtMode      `json:"debt_mode" mapstructure:"debt_mode"`
}

// DefaultEVPolicy subtracts cash, excludes leases, keeps equity-method
// investments and uses total debt only.
func DefaultEVPolicy() EVPolicy {
	return EVPolicy{
		CashTreatment: CashSubtract,
		DebtMode:      DebtTotalOnly,
	}
}

// Validate rejects unknown enum values.
func (p EVPolicy) Validate() error {
	switch p.CashTreatment {
	case CashSubtract, CashIgnore:
	default:
		return WrapError(ErrConfigInvalid, fmt.Errorf("unknown cash_treatment %q", p.CashTreatment))
	}
	switch p.DebtMode {
	case DebtTotalOnly, DebtSplit, DebtTotalPlusShort:
	default:
		return WrapError(ErrConfigInvalid, fmt.Errorf("unknown debt_mode %q", p.DebtMode))
	}
	return nil
}

// EVBridge itemizes the walk from equity value to enterprise value. A nil
// slot means the line did not apply under the policy or data.
type EVBridge struct {
	EquityValue               *DerivedValue `json:"equity_value,omitempty"`
	TotalDebt                 Source        `json:"total_debt,omitempty"`
	ShortTermDebt             Source        `json:"short_term_debt,omitempty"`
	CashAndEquivalents        Source        `json:"cash_and_equivalents,omitempty"`
	MarketableSecurities      Source        `json:"marketable_securities,omitempty"`
	OperatingLeaseLiabilities Source        `json:"operating_lease_liabilities,omitempty"`
	PreferredStock            Source        `json:"preferred_stock,omitempty"`
	NoncontrollingInterests   Source        `json:"noncontrolling_interests,omitempty"`
	EquityMethodInvestments   Source        `json:"equity_method_investments,omitempty"`
	NetDebt                   *DerivedValue `json:"net_debt,omitempty"`
	EnterpriseValue           *DerivedValue `json:"enterprise_value,omitempty"`
}

// EnterpriseValueAmount returns the bridge's EV, absent when not computed.
func (b *EVBridge) EnterpriseValueAmount() Number {
	if b == nil || b.EnterpriseValue == nil {
		return None()
	}
	return b.EnterpriseValue.Value
}

// FilingResult is what the filing source returns for one company.
type FilingResult struct {
	Symbol  string   `json:"symbol"`
	Company string   `json:"company"`
	CIK     string   `json:"cik"`
	Period  string   `json:"period"`
	Metrics *Metrics `json:"metrics"`
}

// CompanyAnalysis is the full, traceable result for one company.
type CompanyAnalysis struct {
	Symbol             string                   `json:"symbol"`
	CompanyName        string                   `json:"company_name"`
	CIK                string                   `json:"cik"`
	Period             string                   `json:"period"`
	ValuationTimestamp time.Time                `json:"valuation_timestamp"`
	Market             *MarketSnapshot          `json:"market,omitempty"`
	Filing             *FilingResult            `json:"filing,omitempty"`
	PriorFiling        *FilingResult            `json:"prior_filing,omitempty"`
	EVBridge           *EVBridge                `json:"ev_bridge,omitempty"`
	Multiples          map[string]*DerivedValue `json:"multiples"`
	Growth             map[string]*DerivedValue `json:"growth"`
	Operating          map[string]*DerivedValue `json:"operating"`
	Warnings           []string                 `json:"warnings"`
	Errors             []string                 `json:"errors"`
}

// Degraded reports whether any block of the analysis failed.
func (a *CompanyAnalysis) Degraded() bool {
	return len(a.Errors) > 0
}
