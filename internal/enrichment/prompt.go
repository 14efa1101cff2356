package enrichment

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/enterprise/aml-screening/internal/models"
)

const systemPrompt = "You are an expert AML analyst with deep knowledge of financial crime patterns, " +
	"regulatory requirements, and risk assessment methodologies. Provide thorough, professional analysis."

// ContextDocument is everything the reasoning service sees about a flag
type ContextDocument struct {
	Transaction  TransactionContext  `json:"transaction"`
	Counterparty CounterpartyContext `json:"counterparty"`
	Customer     CustomerContext     `json:"customer"`
	Flag         FlagContext         `json:"flag_details"`
	Geolocation  GeoContext          `json:"geolocation"`
}

type TransactionContext struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Type        string `json:"type"`
	Channel     string `json:"channel"`
	Date        string `json:"date"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

type CounterpartyContext struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Account string `json:"account"`
}

type CustomerContext struct {
	RiskScore    int    `json:"risk_score"`
	AccountType  string `json:"account_type"`
	Country      string `json:"country"`
	IsSanctioned bool   `json:"is_sanctioned"`
	Balance      string `json:"balance"`
}

type FlagContext struct {
	RuleTriggered   string `json:"rule_triggered"`
	RuleDescription string `json:"rule_description"`
	RiskLevel       string `json:"initial_risk_level"`
	RiskScore       int    `json:"risk_score"`
	FlaggedAt       string `json:"flagged_at"`
}

type GeoContext struct {
	IPAddress string `json:"ip_address"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// BuildContext assembles the context document for one flag
func BuildContext(tx *models.Transaction, customer *models.Customer, flag *models.Flag) ContextDocument {
	return ContextDocument{
		Transaction: TransactionContext{
			ID:          tx.ID.String(),
			Amount:      formatAmount(tx.Amount),
			Currency:    tx.Currency,
			Type:        tx.TransactionType,
			Channel:     tx.Channel,
			Date:        tx.TransactionDate.Format(time.RFC3339),
			Reference:   tx.ReferenceNumber,
			Description: tx.Description,
		},
		Counterparty: CounterpartyContext{
			Name:    tx.CounterpartyName,
			Country: tx.CounterpartyCountry,
			Account: tx.CounterpartyAccount,
		},
		Customer: CustomerContext{
			RiskScore:    customer.RiskScore,
			AccountType:  customer.AccountType,
			Country:      customer.CountryCode,
			IsSanctioned: customer.IsSanctioned,
			Balance:      formatAmount(customer.Balance),
		},
		Flag: FlagContext{
			RuleTriggered:   flag.RuleName,
			RuleDescription: flag.RuleDescription,
			RiskLevel:       flag.RiskLevel,
			RiskScore:       flag.RiskScore,
			FlaggedAt:       flag.FlaggedAt.Format(time.RFC3339),
		},
		Geolocation: GeoContext{
			IPAddress: tx.IPAddress,
			Latitude:  formatCoordinate(tx.LocationLat),
			Longitude: formatCoordinate(tx.LocationLng),
		},
	}
}

var promptTemplate = template.Must(template.New("analysis").Parse(`You are an expert Anti-Money Laundering (AML) analyst. Analyze the following flagged transaction and provide a comprehensive risk assessment.

Transaction Details:
- Amount: {{.Transaction.Currency}} {{.Transaction.Amount}}
- Type: {{.Transaction.Type}}
- Channel: {{.Transaction.Channel}}
- Date: {{.Transaction.Date}}
- Reference: {{.Transaction.Reference}}
- Description: {{.Transaction.Description}}

Customer Profile:
- Risk Score: {{.Customer.RiskScore}}/5
- Account Type: {{.Customer.AccountType}}
- Country: {{.Customer.Country}}
- Current Balance: {{.Transaction.Currency}} {{.Customer.Balance}}
- Is Sanctioned: {{.Customer.IsSanctioned}}

Counterparty Information:
- Name: {{.Counterparty.Name}}
- Country: {{.Counterparty.Country}}
- Account: {{.Counterparty.Account}}

Initial Flag Details:
- Rule Triggered: {{.Flag.RuleTriggered}}
- Rule Description: {{.Flag.RuleDescription}}
- Initial Risk Level: {{.Flag.RiskLevel}}
- Initial Risk Score: {{.Flag.RiskScore}}/100
- Flagged At: {{.Flag.FlaggedAt}}

Geolocation Data:
- IP Address: {{.Geolocation.IPAddress}}
- Location: {{.Geolocation.Latitude}}, {{.Geolocation.Longitude}}

Analyze this transaction for money laundering risk considering:
1. Transaction patterns and amounts
2. Customer risk profile
3. Counterparty and geographic risks
4. Regulatory compliance factors
5. Typology matching (structuring, layering, placement, etc.)
`))

// RenderPrompt renders the analyst prompt for a context document
func RenderPrompt(doc ContextDocument) (string, error) {
	var sb strings.Builder
	if err := promptTemplate.Execute(&sb, doc); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return sb.String(), nil
}

var printer = message.NewPrinter(language.English)

func formatAmount(d decimal.Decimal) string {
	f, _ := d.Round(2).Float64()
	return printer.Sprintf("%.2f", f)
}

func formatCoordinate(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.6f", *v)
}
