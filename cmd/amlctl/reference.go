package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/enterprise/aml-screening/internal/models"
	"github.com/enterprise/aml-screening/internal/repositories"
)

var createCustomerCmd = &cobra.Command{
	Use:   "create-customer",
	Short: "Register a customer account",
	RunE: func(cmd *cobra.Command, args []string) error {
		customer, err := customerFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := repositories.NewDatabase(cfg.Database)
		if err != nil {
			return eris.Wrap(err, "connect database")
		}
		defer db.Close()

		if err := repositories.NewCustomerRepository(db).Create(ctx, customer); err != nil {
			return eris.Wrap(err, "create customer")
		}
		return printJSON(cmd.OutOrStdout(), customer)
	},
}

var addSanctionCmd = &cobra.Command{
	Use:   "add-sanction",
	Short: "Add an entry to the sanctions watch list",
	RunE: func(cmd *cobra.Command, args []string) error {
		entity, err := sanctionFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := repositories.NewDatabase(cfg.Database)
		if err != nil {
			return eris.Wrap(err, "connect database")
		}
		defer db.Close()

		if err := repositories.NewSanctionsRepository(db).Create(ctx, entity); err != nil {
			return eris.Wrap(err, "add sanction")
		}
		return printJSON(cmd.OutOrStdout(), entity)
	},
}

func customerFromFlags(cmd *cobra.Command) (*models.Customer, error) {
	c := &models.Customer{}
	c.Name, _ = cmd.Flags().GetString("name")
	c.AccountNumber, _ = cmd.Flags().GetString("account")
	c.AccountType, _ = cmd.Flags().GetString("type")
	c.RiskScore, _ = cmd.Flags().GetInt("risk-score")
	c.IsSanctioned, _ = cmd.Flags().GetBool("sanctioned")
	country, _ := cmd.Flags().GetString("country")
	c.CountryCode = strings.ToUpper(country)

	balance, _ := cmd.Flags().GetString("balance")
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --balance %q", balance)
	}
	c.Balance = amount

	switch c.AccountType {
	case "checking", "savings", "business":
	default:
		return nil, eris.Errorf("invalid --type %q: must be checking, savings or business", c.AccountType)
	}
	if c.RiskScore < 1 || c.RiskScore > 5 {
		return nil, eris.Errorf("invalid --risk-score %d: must be between 1 and 5", c.RiskScore)
	}
	if len(c.CountryCode) > 2 {
		return nil, eris.Errorf("invalid --country %q: use a two-letter code", country)
	}
	return c, nil
}

func sanctionFromFlags(cmd *cobra.Command) (*models.SanctionedEntity, error) {
	e := &models.SanctionedEntity{}
	e.Name, _ = cmd.Flags().GetString("name")
	e.EntityType, _ = cmd.Flags().GetString("entity-type")
	e.SanctionsProgram, _ = cmd.Flags().GetString("program")
	country, _ := cmd.Flags().GetString("country")
	e.CountryCode = strings.ToUpper(country)

	if strings.TrimSpace(e.Name) == "" {
		return nil, eris.New("--name must not be blank")
	}
	switch e.EntityType {
	case "individual", "organization":
	default:
		return nil, eris.Errorf("invalid --entity-type %q: must be individual or organization", e.EntityType)
	}
	if len(e.CountryCode) > 2 {
		return nil, eris.Errorf("invalid --country %q: use a two-letter code", country)
	}
	return e, nil
}

func init() {
	createCustomerCmd.Flags().String("name", "", "customer name")
	createCustomerCmd.Flags().String("account", "", "account number")
	createCustomerCmd.Flags().String("type", "checking", "checking, savings or business")
	createCustomerCmd.Flags().String("balance", "0", "opening balance")
	createCustomerCmd.Flags().Int("risk-score", 1, "customer risk score (1-5)")
	createCustomerCmd.Flags().String("country", "", "ISO country code")
	createCustomerCmd.Flags().Bool("sanctioned", false, "mark the customer as sanctioned")
	_ = createCustomerCmd.MarkFlagRequired("name")
	_ = createCustomerCmd.MarkFlagRequired("account")
	rootCmd.AddCommand(createCustomerCmd)

	addSanctionCmd.Flags().String("name", "", "listed name")
	addSanctionCmd.Flags().String("entity-type", "individual", "individual or organization")
	addSanctionCmd.Flags().String("country", "", "ISO country code")
	addSanctionCmd.Flags().String("program", "", "sanctions program, e.g. SDN")
	_ = addSanctionCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(addSanctionCmd)
}
